package safety

import (
	"context"
	"strings"

	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/llm"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
)

// ValidatorClassifierPrompt asks the safety LLM whether an assistant
// response is safe to speak to the caller.
const ValidatorClassifierPrompt = `You are reviewing a voice assistant's response before it is spoken to a caller.
Respond with exactly one word: SAFE if the response is appropriate to speak, or UNSAFE if it contains
harmful, inappropriate, or clearly incorrect medical/clinical guidance.`

// UnsafeOutputHandler is notified with the offending text whenever the
// output validator blocks a response.
type UnsafeOutputHandler func(ctx context.Context, text string)

// OutputValidator screens each complete assistant TTSSpeak frame against the
// safety classifier before it reaches the speech synthesizer (spec.md
// §4.7's "Output validator").
type OutputValidator struct {
	classifier      llm.ChatModel
	fallbackMessage string
	onUnsafe        UnsafeOutputHandler
}

// NewOutputValidator builds an OutputValidator using classifier for the
// SAFE/UNSAFE decision. fallbackMessage is spoken in place of any response
// the classifier rejects.
func NewOutputValidator(classifier llm.ChatModel, fallbackMessage string, onUnsafe UnsafeOutputHandler) *OutputValidator {
	return &OutputValidator{classifier: classifier, fallbackMessage: fallbackMessage, onUnsafe: onUnsafe}
}

// ProcessFrame validates TTSSpeak frames, substituting the fallback message
// (preceded by a StartInterruption, to cut off anything already queued) for
// any response the classifier marks UNSAFE. Every other frame type passes
// through unchanged.
func (v *OutputValidator) ProcessFrame(ctx context.Context, f frame.Frame) ([]frame.Frame, error) {
	if f.Type != frame.TTSSpeak || f.Text == "" {
		return []frame.Frame{f}, nil
	}

	resp, err := v.classifier.Generate(ctx, []schema.Message{
		schema.NewSystemMessage(ValidatorClassifierPrompt),
		schema.NewHumanMessage(f.Text),
	})
	if err != nil {
		o11y.FromContext(ctx).Warn(ctx, "output validator: classifier call failed, allowing response", "error", err)
		return []frame.Frame{f}, nil
	}

	if !strings.Contains(strings.ToUpper(resp.Text()), "UNSAFE") {
		return []frame.Frame{f}, nil
	}

	o11y.FromContext(ctx).Info(ctx, "output validator: blocked unsafe response")
	if v.onUnsafe != nil {
		v.onUnsafe(ctx, f.Text)
	}
	return []frame.Frame{frame.NewStartInterruptionFrame(), frame.NewTTSSpeakFrame(v.fallbackMessage)}, nil
}

// Processor adapts ProcessFrame to a frame.FrameProcessor.
func (v *OutputValidator) Processor() frame.FrameProcessor {
	return frame.PerFrame(v.ProcessFrame)
}
