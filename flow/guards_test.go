package flow

import "testing"

func TestIsDuplicateTransition(t *testing.T) {
	a := &NodeConfig{Name: "a"}
	b := &NodeConfig{Name: "b"}
	if isDuplicateTransition(a, a) != true {
		t.Fatal("expected true for identical node")
	}
	if isDuplicateTransition(a, b) {
		t.Fatal("expected false for different nodes")
	}
	if isDuplicateTransition(nil, a) || isDuplicateTransition(a, nil) {
		t.Fatal("expected false when either side is nil")
	}
}

func TestShouldAskAnythingElseStopsAtMax(t *testing.T) {
	s := NewState()
	for i := 0; i < MaxAnythingElseRounds; i++ {
		if !ShouldAskAnythingElse(s) {
			t.Fatalf("expected true on round %d", i)
		}
	}
	if ShouldAskAnythingElse(s) {
		t.Fatal("expected false once the round cap is reached")
	}
}

func TestCallEndedGuard(t *testing.T) {
	s := NewState()
	if CallEndedGuard(s) {
		t.Fatal("expected false before MarkCallEnded")
	}
	s.MarkCallEnded()
	if !CallEndedGuard(s) {
		t.Fatal("expected true after MarkCallEnded")
	}
}
