// Package triage classifies an in-progress call as ongoing human
// conversation, an IVR menu, or a voicemail greeting, and gates the main
// conversation branch until that classification resolves (SPEC_FULL.md §4.3).
//
// The detector runs a frame.ParallelPipeline with two branches: the main
// branch, gated shut until triage resolves, and a classifier branch that
// feeds transcription text to a small/fast classifier LLM and parses its
// tagged verdict. This mirrors the original's TriageDetector composition of
// a MainBranchGate alongside a ClassifierGate/TriageProcessor chain.
package triage

import (
	"context"
	"strings"
	"sync"

	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/llm"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
)

// Classification is the triage verdict for a call.
type Classification string

const (
	Conversation Classification = "conversation"
	IVR          Classification = "ivr"
	Voicemail    Classification = "voicemail"
	Unknown      Classification = ""
)

// ClassifierPrompt is the system prompt sent to the classifier LLM. It asks
// for one of three tags and nothing else, so TriageProcessor's parser stays
// a simple substring search rather than a general-purpose extractor.
const ClassifierPrompt = `You are listening to the start of a phone call. Based on what you hear, classify it as exactly one of:
<conversation/> - a human is having a live conversation with the caller
<ivr/> - an automated phone menu ("press 1 for...", "for billing press 2")
<voicemail/> - a voicemail greeting ("you have reached the voicemail of...", "please leave a message")
Respond with exactly one tag and nothing else.`

// Notifiers bundles the one-shot signals the event wiring in cmd/bot keys
// off of (on_conversation_detected, on_ivr_detected, on_voicemail_detected
// in the original's setup_triage_handlers).
type Notifiers struct {
	Conversation *frame.Notifier
	IVR          *frame.Notifier
	Voicemail    *frame.Notifier
}

// NewNotifiers returns a fresh, unfired Notifiers set.
func NewNotifiers() *Notifiers {
	return &Notifiers{
		Conversation: frame.NewNotifier(),
		IVR:          frame.NewNotifier(),
		Voicemail:    frame.NewNotifier(),
	}
}

// Detector wires the triage pipeline: MainGate stays closed until the
// classifier resolves; once TriageProcessor parses a verdict it records the
// Classification, fires the matching Notifier, and opens MainGate so the
// buffered conversation frames flow through. TTSGate sits on the output
// side, placed after TTS (spec.md §4.3's `gate()`), so spoken output stays
// blocked until the same decision resolves.
type Detector struct {
	MainGate  *frame.Gate
	TTSGate   *TTSGate
	Notifiers *Notifiers

	classifier llm.ChatModel

	mu    sync.Mutex
	value Classification
}

// NewDetector constructs a Detector that classifies using classifier.
func NewDetector(classifier llm.ChatModel) *Detector {
	return &Detector{
		MainGate:   frame.NewGate(),
		TTSGate:    NewTTSGate(),
		Notifiers:  NewNotifiers(),
		classifier: classifier,
	}
}

// Result returns the resolved classification, or Unknown if triage has not
// yet resolved.
func (d *Detector) Result() Classification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// resolve records c as the first-and-final classification and fires the
// matching notifier. Only Conversation opens MainGate/TTSGate here: a human
// picked up, so the buffered main branch and any spoken reply can flow
// immediately. IVR and Voicemail leave both gates closed — per spec.md
// §4.3 the main branch stays gated until a separate ivr_completed signal
// (the session orchestrator calls MainGate.Open()/TTSGate.Open() itself
// once IVR navigation finishes), and the voicemail path speaks its single
// message directly after its own response delay rather than through the
// gated main branch at all.
func (d *Detector) resolve(ctx context.Context, c Classification) {
	d.mu.Lock()
	if d.value != Unknown {
		d.mu.Unlock()
		return
	}
	d.value = c
	d.mu.Unlock()

	o11y.FromContext(ctx).Info(ctx, "triage resolved", "classification", string(c))

	switch c {
	case Conversation:
		d.Notifiers.Conversation.Notify()
		d.MainGate.Open()
		d.TTSGate.Open()
	case IVR:
		d.Notifiers.IVR.Notify()
	case Voicemail:
		d.Notifiers.Voicemail.Notify()
	}
}

// ClassifierBranch returns the FrameProcessor for the classifier side of the
// ParallelPipeline: it forwards Transcription frames to the classifier LLM,
// parses the tagged verdict, and resolves the Detector.
func (d *Detector) ClassifierBranch() frame.FrameProcessor {
	return frame.PerFrame(func(ctx context.Context, f frame.Frame) ([]frame.Frame, error) {
		if f.Type != frame.Transcription || d.Result() != Unknown {
			return nil, nil
		}

		resp, err := d.classifier.Generate(ctx, []schema.Message{
			schema.NewSystemMessage(ClassifierPrompt),
			schema.NewHumanMessage(f.Text),
		})
		if err != nil {
			o11y.FromContext(ctx).Error(ctx, "triage classifier call failed", "error", err)
			return nil, nil
		}

		d.resolve(ctx, parseVerdict(resp.Text()))
		return nil, nil
	})
}

// Pipeline returns the ParallelPipeline wiring described at the package
// level: the gated main branch alongside the classifier branch.
func (d *Detector) Pipeline(mainBranch frame.FrameProcessor) *frame.ParallelPipeline {
	return frame.NewParallelPipeline(
		frame.Chain(d.MainGate, mainBranch),
		d.ClassifierBranch(),
	)
}

// TTSGate sits after TTS in the output chain (spec.md §4.3's `gate()`): it
// blocks TTSSpeak frames until Open is called, so nothing is spoken while
// triage is still undecided. DTMFUrgent frames (the IVR navigator's keypad
// echoes) and control frames pass through unconditionally, since they carry
// IVR-directed signaling rather than speech meant for a human caller.
type TTSGate struct {
	notifier *frame.Notifier
}

// NewTTSGate returns a closed TTSGate.
func NewTTSGate() *TTSGate {
	return &TTSGate{notifier: frame.NewNotifier()}
}

// Open releases any TTSSpeak frames buffered behind the gate and lets
// subsequent ones through immediately. Safe to call more than once.
func (g *TTSGate) Open() {
	g.notifier.Notify()
}

// IsOpen reports whether Open has been called.
func (g *TTSGate) IsOpen() bool {
	return g.notifier.Fired()
}

// Process blocks each TTSSpeak frame on the gate's notifier before
// forwarding it; every other frame type passes straight through.
func (g *TTSGate) Process(ctx context.Context, in <-chan frame.Frame, out chan<- frame.Frame) error {
	for f := range in {
		if f.Type == frame.TTSSpeak && !f.IsControl() {
			select {
			case <-g.notifier.Wait():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case out <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func parseVerdict(text string) Classification {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "<ivr/>") || strings.Contains(lower, "<ivr>"):
		return IVR
	case strings.Contains(lower, "<voicemail/>") || strings.Contains(lower, "<voicemail>"):
		return Voicemail
	case strings.Contains(lower, "<conversation/>") || strings.Contains(lower, "<conversation>"):
		return Conversation
	default:
		return Unknown
	}
}
