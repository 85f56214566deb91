package ivr

import (
	"context"
	"iter"
	"testing"

	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/llm"
	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
)

type stubModel struct {
	text string
	err  error
}

func (s *stubModel) Generate(ctx context.Context, msgs []schema.Message, opts ...llm.GenerateOption) (*schema.AIMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return schema.NewAIMessage(s.text), nil
}

func (s *stubModel) Stream(ctx context.Context, msgs []schema.Message, opts ...llm.GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	return func(yield func(schema.StreamChunk, error) bool) {}
}

func (s *stubModel) BindTools(tools []schema.ToolDefinition) llm.ChatModel { return s }
func (s *stubModel) ModelID() string                                      { return "stub" }

func TestNavigatorActivateDeactivateIdempotent(t *testing.T) {
	n := NewNavigator(&stubModel{}, nil, nil)
	if n.Active() {
		t.Fatal("expected inactive before Activate")
	}
	n.Activate(context.Background(), "reach billing", nil)
	if !n.Active() {
		t.Fatal("expected active after Activate")
	}
	n.Activate(context.Background(), "ignored second goal", nil) // no-op
	n.Deactivate()
	n.Deactivate() // idempotent, must not panic
	if n.Active() {
		t.Fatal("expected inactive after Deactivate")
	}
}

func TestProcessFrameEmitsDTMFOnTaggedResponse(t *testing.T) {
	var pressed string
	n := NewNavigator(&stubModel{text: "<dtmf>3</dtmf>"}, nil, func(ctx context.Context, digit string) { pressed = digit })
	n.Activate(context.Background(), "reach billing", nil)

	out, err := n.ProcessFrame(context.Background(), frame.NewTranscriptionFrame("press 1 for sales, 3 for billing", "system"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (dtmf + skip-tts echo)", len(out))
	}
	if out[0].Type != frame.DTMFUrgent || out[0].Signal != "3" {
		t.Errorf("out[0] = %+v, want DTMFUrgent digit 3", out[0])
	}
	if !out[1].Metadata.SkipTTS {
		t.Error("expected echo frame to be marked SkipTTS")
	}
	if pressed != "3" {
		t.Errorf("onDTMF received %q, want %q", pressed, "3")
	}
}

func TestProcessFrameCompletedDeactivatesAndReportsStatus(t *testing.T) {
	var got Status
	n := NewNavigator(&stubModel{text: "<ivr>completed</ivr>"}, func(ctx context.Context, s Status) { got = s }, nil)
	n.Activate(context.Background(), "reach billing", nil)

	out, err := n.ProcessFrame(context.Background(), frame.NewTranscriptionFrame("thanks for calling, transferring you now", "system"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no emitted frames on completion, got %v", out)
	}
	if n.Active() {
		t.Error("expected Deactivate to have been called")
	}
	if got != Completed {
		t.Errorf("onStatus received %q, want %q", got, Completed)
	}
}

func TestProcessFrameStuckDeactivates(t *testing.T) {
	var got Status
	n := NewNavigator(&stubModel{text: "<ivr>stuck</ivr>"}, func(ctx context.Context, s Status) { got = s }, nil)
	n.Activate(context.Background(), "reach billing", nil)

	_, _ = n.ProcessFrame(context.Background(), frame.NewTranscriptionFrame("please hold", "system"))
	if got != Stuck || n.Active() {
		t.Errorf("got status %q active=%v, want Stuck and inactive", got, n.Active())
	}
}

func TestProcessFrameIgnoresNonTranscriptionFrames(t *testing.T) {
	n := NewNavigator(&stubModel{text: "<dtmf>1</dtmf>"}, nil, nil)
	n.Activate(context.Background(), "goal", nil)

	f := frame.NewTTSSpeakFrame("hello")
	out, err := n.ProcessFrame(context.Background(), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Type != frame.TTSSpeak {
		t.Errorf("expected frame passed through unchanged, got %v", out)
	}
}

func TestProcessFrameNoOpWhenInactive(t *testing.T) {
	n := NewNavigator(&stubModel{text: "<dtmf>1</dtmf>"}, nil, nil)
	out, err := n.ProcessFrame(context.Background(), frame.NewTranscriptionFrame("press 1", "system"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("expected passthrough when inactive, got %v", out)
	}
}

func TestProcessFrameWaitProducesNoFrames(t *testing.T) {
	n := NewNavigator(&stubModel{text: "<ivr>wait</ivr>"}, nil, nil)
	n.Activate(context.Background(), "goal", nil)

	out, err := n.ProcessFrame(context.Background(), frame.NewTranscriptionFrame("...", "system"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no frames for wait verdict, got %v", out)
	}
	if !n.Active() {
		t.Error("expected navigator to remain active on wait")
	}
}
