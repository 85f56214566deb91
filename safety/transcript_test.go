package safety

import (
	"context"
	"testing"
	"time"

	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
)

func TestTranscriptAppendAndAssemble(t *testing.T) {
	tr := NewTranscript()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }
	tr.Append("user", "hi there")

	tr.now = func() time.Time { return base.Add(1 * time.Second) }
	tr.Append("user", "I have a question")

	tr.now = func() time.Time { return base.Add(10 * time.Second) }
	tr.Append("assistant", "Sure, go ahead.")

	entries := tr.Assemble()
	if len(entries) != 2 {
		t.Fatalf("expected 2 merged entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Role != "user" || entries[0].Content != "hi there I have a question" {
		t.Fatalf("expected merged user entry, got %+v", entries[0])
	}
	if entries[1].Role != "assistant" || entries[1].Content != "Sure, go ahead." {
		t.Fatalf("expected separate assistant entry, got %+v", entries[1])
	}
}

func TestTranscriptDoesNotMergeAcrossWindow(t *testing.T) {
	tr := NewTranscript()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }
	tr.Append("user", "first")

	tr.now = func() time.Time { return base.Add(MergeWindow + time.Second) }
	tr.Append("user", "second, much later")

	entries := tr.Assemble()
	if len(entries) != 2 {
		t.Fatalf("expected entries beyond the merge window to stay separate, got %+v", entries)
	}
}

func TestTranscriptProcessFrameCapturesContextUpdates(t *testing.T) {
	tr := NewTranscript()
	proc := tr.ProcessFrame("user")

	out, err := proc(context.Background(), frame.NewContextUpdateFrame("user", "hello there"))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected passthrough, got %+v", out)
	}

	entries := tr.Assemble()
	if len(entries) != 1 || entries[0].Content != "hello there" {
		t.Fatalf("expected the context update captured as a transcript entry, got %+v", entries)
	}
}

func TestTranscriptProcessFrameIgnoresOtherTypes(t *testing.T) {
	tr := NewTranscript()
	proc := tr.ProcessFrame("user")

	if _, err := proc(context.Background(), frame.NewAudioFrame([]byte{1}, 16000)); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if len(tr.Assemble()) != 0 {
		t.Fatal("expected no transcript entries from a non-context-update frame")
	}
}
