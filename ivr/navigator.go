// Package ivr navigates automated phone menus: an LLM-driven navigator that
// emits DTMF keypresses toward a stated goal, and a parallel detector that
// watches for a human picking up mid-menu (SPEC_FULL.md §4.4).
package ivr

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/llm"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
)

// Status is the navigator's verdict on the current menu state, parsed from
// the navigation LLM's <ivr>...</ivr> tag.
type Status string

const (
	Detected  Status = "detected"
	Completed Status = "completed"
	Stuck     Status = "stuck"
	Wait      Status = "wait"
)

// NavigationPrompt is the system prompt given to the navigation LLM. %s is
// the caller's stated goal (e.g. "reach the billing department").
const NavigationPrompt = `You are navigating an automated phone menu (IVR) on behalf of a caller.
Goal: %s

Listen to the menu audio transcribed below and respond with exactly one tag:
<dtmf>N</dtmf> - press a single digit N (0-9, *, or #) on the keypad
<ivr>completed</ivr> - a human has answered, or the goal has been reached
<ivr>stuck</ivr> - the menu loops without a path to the goal
<ivr>wait</ivr> - more menu audio is expected before a decision can be made

Respond with exactly one tag and nothing else.`

// IVRStopSecs is the VAD end-of-turn pause applied while navigating a menu:
// longer than conversational pacing because IVR prompts run long and often
// pause mid-sentence (spec.md §4.4/§5).
const IVRStopSecs = 2.0

var (
	dtmfTagRe   = regexp.MustCompile(`(?i)<dtmf>\s*([0-9*#])\s*</dtmf>`)
	statusTagRe = regexp.MustCompile(`(?i)<ivr>\s*(completed|stuck|wait)\s*</ivr>`)
)

// StatusHandler is notified whenever the navigator's status changes.
type StatusHandler func(ctx context.Context, status Status)

// DTMFHandler is notified whenever the navigator presses a key, so the
// session orchestrator can log it to the call transcript. The navigator's
// own branch of the classifier ParallelPipeline never passes through
// contextEmitStage/Transcript.Processor (those wrap only the separate
// caller-audio branch), so this direct callback is how a keypress reaches
// the transcript at all.
type DTMFHandler func(ctx context.Context, digit string)

// Navigator drives the LLM-based IVR navigation conversation. It is
// activated once triage detects an IVR menu and deactivated once it reaches
// Completed or Stuck (SPEC_FULL.md's Open Question #1 makes Deactivate
// idempotent so a racing human-detector signal is a safe no-op).
type Navigator struct {
	model llm.ChatModel

	mu      sync.Mutex
	active  bool
	goal    string
	history []schema.Message

	onStatus StatusHandler
	onDTMF   DTMFHandler
}

// NewNavigator constructs an inactive Navigator backed by model. onDTMF may
// be nil if the caller doesn't need a record of individual keypresses.
func NewNavigator(model llm.ChatModel, onStatus StatusHandler, onDTMF DTMFHandler) *Navigator {
	return &Navigator{model: model, onStatus: onStatus, onDTMF: onDTMF}
}

// Activate starts navigation toward goal, seeded with the conversation so
// far (typically the transcript collected before triage resolved to IVR).
// It returns the upstream control frames the caller must inject into the
// pipeline to take effect: a context update carrying the navigation system
// prompt plus history, and a VADParamsUpdate slowing end-of-turn detection
// to IVRStopSecs (mirroring the original processor's own push_frame calls
// inside activate()). A repeat call while already active is a no-op and
// returns nil.
func (n *Navigator) Activate(ctx context.Context, goal string, history []schema.Message) []frame.Frame {
	n.mu.Lock()
	if n.active {
		n.mu.Unlock()
		return nil
	}
	n.active = true
	n.goal = goal
	n.history = append([]schema.Message{}, history...)
	n.mu.Unlock()

	o11y.FromContext(ctx).Info(ctx, "ivr navigator activated", "goal", goal)

	return []frame.Frame{
		frame.NewContextUpdateFrame("system", fmt.Sprintf(NavigationPrompt, goal)),
		frame.NewVADParamsUpdateFrame(IVRStopSecs),
	}
}

// Deactivate stops navigation. Idempotent: a second call is a no-op, so
// either of two racing completion signals (the navigator's own <ivr>
// tag or the parallel human detector) can safely call it.
func (n *Navigator) Deactivate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.active = false
}

// Active reports whether navigation is currently running.
func (n *Navigator) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// ProcessFrame consumes a Transcription frame of menu audio, asks the
// navigation LLM for its next move, and returns the frames to emit: a DTMF
// frame (with its transcript echo marked SkipTTS per spec.md §4.4) when the
// verdict is a keypress, or nothing when the verdict is Wait. A keypress
// also reports the digit via onDTMF, since this branch of the classifier
// ParallelPipeline never reaches Transcript.Processor on its own. A
// Completed or Stuck verdict deactivates the navigator and reports the
// status via onStatus without emitting a frame.
func (n *Navigator) ProcessFrame(ctx context.Context, f frame.Frame) ([]frame.Frame, error) {
	if f.Type != frame.Transcription || !n.Active() {
		return []frame.Frame{f}, nil
	}

	n.mu.Lock()
	n.history = append(n.history, schema.NewHumanMessage(f.Text))
	msgs := append([]schema.Message{schema.NewSystemMessage(fmt.Sprintf(NavigationPrompt, n.goal))}, n.history...)
	n.mu.Unlock()

	resp, err := n.model.Generate(ctx, msgs)
	if err != nil {
		o11y.FromContext(ctx).Error(ctx, "ivr navigation call failed", "error", err)
		return nil, nil
	}

	text := resp.Text()
	n.mu.Lock()
	n.history = append(n.history, schema.NewAIMessage(text))
	n.mu.Unlock()

	if m := statusTagRe.FindStringSubmatch(text); m != nil {
		status := Status(strings.ToLower(m[1]))
		if status == Wait {
			return nil, nil
		}
		n.Deactivate()
		if n.onStatus != nil {
			n.onStatus(ctx, status)
		}
		return nil, nil
	}

	if m := dtmfTagRe.FindStringSubmatch(text); m != nil {
		digit := m[1]
		if n.onDTMF != nil {
			n.onDTMF(ctx, digit)
		}
		echo := frame.NewTextFrame(fmt.Sprintf("[pressed %s]", digit))
		echo.Metadata.SkipTTS = true
		return []frame.Frame{frame.NewDTMFFrame(digit), echo}, nil
	}

	return nil, nil
}

// Processor adapts ProcessFrame into a frame.FrameProcessor.
func (n *Navigator) Processor() frame.FrameProcessor {
	return frame.PerFrame(n.ProcessFrame)
}
