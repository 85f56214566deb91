package safety

import (
	"context"
	"sync"
	"time"

	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
)

// MergeWindow is how close in time two consecutive same-role transcript
// entries must be to get concatenated during assembly (spec.md §4.7's
// "Transcript assembly").
const MergeWindow = 3 * time.Second

// Entry is one captured (role, content, timestamp) transcript event. Kind
// distinguishes a plain conversational turn (the zero value) from a
// system-authored event the session orchestrator logs alongside it — e.g.
// "triage", "ivr_action", "transfer" — mirroring the original's per-entry
// "type" field (handlers/triage.py, handlers/transport.py) so those events
// survive into the persisted transcript instead of only appearing in logs.
type Entry struct {
	Role      string
	Kind      string
	Content   string
	Timestamp time.Time
}

// Transcript captures context-update events from the conversation and
// exposes the assembled, merged entry list for persistence.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewTranscript returns an empty Transcript using wall-clock time for entry
// timestamps.
func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// Append records one plain conversational transcript entry for role.
func (t *Transcript) Append(role, content string) {
	t.AppendKind(role, "", content)
}

// AppendKind records a transcript entry tagged with kind, for session-level
// events logged alongside the conversation (e.g. "triage", "ivr_action",
// "transfer" — see Entry's doc comment).
func (t *Transcript) AppendKind(role, kind, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Role: role, Kind: kind, Content: content, Timestamp: t.now()})
}

// ProcessFrame captures LLMContextUpdate frames (spec.md's context-update
// stream) as transcript entries. role is the fixed role this processor
// instance appends under, matching how the pipeline wires one instance per
// direction (transcript(user), transcript(assistant)).
func (t *Transcript) ProcessFrame(role string) frame.PerFrameFunc {
	return func(ctx context.Context, f frame.Frame) ([]frame.Frame, error) {
		if f.Type == frame.LLMContextUpdate && f.Text != "" {
			t.Append(role, f.Text)
		}
		return []frame.Frame{f}, nil
	}
}

// Processor builds a frame.FrameProcessor that appends role's transcript
// entries as LLMContextUpdate frames pass through.
func (t *Transcript) Processor(role string) frame.FrameProcessor {
	return frame.PerFrame(t.ProcessFrame(role))
}

// Assemble returns the recorded entries with consecutive same-role entries
// within MergeWindow of each other concatenated (single space separated).
func (t *Transcript) Assemble() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) == 0 {
		return nil
	}

	merged := []Entry{t.entries[0]}
	for _, e := range t.entries[1:] {
		last := &merged[len(merged)-1]
		if e.Role == last.Role && e.Kind == last.Kind && e.Timestamp.Sub(last.Timestamp) <= MergeWindow {
			last.Content += " " + e.Content
			last.Timestamp = e.Timestamp
			continue
		}
		merged = append(merged, e)
	}
	return merged
}
