package ivr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/llm"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
)

const (
	// ClassificationTimeout bounds how long HumanDetector waits for
	// transcription to settle before forcing a classification call on
	// whatever text has accumulated.
	ClassificationTimeout = 3 * time.Second
	// DebounceDelay is the quiet period after the most recent
	// transcription chunk before HumanDetector classifies early, so a
	// still-speaking IVR prompt doesn't get cut off mid-sentence.
	DebounceDelay = 300 * time.Millisecond
)

// ClassifierPrompt asks a fast LLM whether the speaker is a live human or an
// automated system, independent of and running alongside Navigator.
const ClassifierPrompt = `Based on this phone audio transcript, is the speaker a live human being or an automated system (IVR menu, voicemail, recording)?
Respond with exactly one word: "human" or "automated".`

// HumanHandler is notified once HumanDetector classifies the speaker as a
// live human, ending the race with the IVR navigator's own completion
// signal (SPEC_FULL.md's Open Question #1: whichever fires first wins).
type HumanHandler func(ctx context.Context)

// HumanDetector runs alongside Navigator, watching the same transcription
// stream for the moment a human picks up mid-menu. It debounces bursts of
// transcription text so a classification call fires once speech settles,
// bounded by ClassificationTimeout so a long IVR announcement doesn't stall
// detection indefinitely.
type HumanDetector struct {
	model    llm.ChatModel
	onHuman  HumanHandler

	mu        sync.Mutex
	buffer    strings.Builder
	timer     *time.Timer
	deadline  *time.Timer
	triggered bool
}

// NewHumanDetector constructs a HumanDetector backed by model.
func NewHumanDetector(model llm.ChatModel, onHuman HumanHandler) *HumanDetector {
	return &HumanDetector{model: model, onHuman: onHuman}
}

// Reset clears accumulated text and cancels any pending timers, for reuse
// across calls.
func (d *HumanDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimersLocked()
	d.timer, d.deadline = nil, nil
	d.buffer.Reset()
	d.triggered = false
}

func (d *HumanDetector) stopTimersLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.deadline != nil {
		d.deadline.Stop()
	}
}

// ProcessFrame feeds a Transcription frame into the debounce logic. It
// forwards every frame unchanged; classification happens as a side effect
// on its own timers, not inline on the pipeline goroutine.
func (d *HumanDetector) ProcessFrame(ctx context.Context, f frame.Frame) ([]frame.Frame, error) {
	if f.Type != frame.Transcription {
		return []frame.Frame{f}, nil
	}

	d.mu.Lock()
	if d.triggered {
		d.mu.Unlock()
		return []frame.Frame{f}, nil
	}
	if d.buffer.Len() > 0 {
		d.buffer.WriteString(" ")
	}
	d.buffer.WriteString(f.Text)
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(DebounceDelay, func() { d.classify(ctx) })
	if d.deadline == nil {
		d.deadline = time.AfterFunc(ClassificationTimeout, func() { d.classify(ctx) })
	}
	d.mu.Unlock()

	return []frame.Frame{f}, nil
}

// Processor adapts ProcessFrame into a frame.FrameProcessor.
func (d *HumanDetector) Processor() frame.FrameProcessor {
	return frame.PerFrame(d.ProcessFrame)
}

func (d *HumanDetector) classify(ctx context.Context) {
	d.mu.Lock()
	if d.triggered || d.buffer.Len() == 0 {
		d.mu.Unlock()
		return
	}
	text := d.buffer.String()
	d.triggered = true
	d.stopTimersLocked()
	d.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, ClassificationTimeout)
	defer cancel()

	resp, err := d.model.Generate(callCtx, []schema.Message{
		schema.NewSystemMessage(ClassifierPrompt),
		schema.NewHumanMessage(text),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			o11y.FromContext(ctx).Warn(ctx, "human detector classifier call timed out, failing open")
			return
		}
		o11y.FromContext(ctx).Error(ctx, "human detector classifier call failed", "error", err)
		return
	}

	if strings.Contains(strings.ToLower(resp.Text()), "human") {
		o11y.FromContext(ctx).Info(ctx, "human detected mid-ivr")
		if d.onHuman != nil {
			d.onHuman(ctx)
		}
	}
}
