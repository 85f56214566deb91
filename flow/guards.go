package flow

// MaxAnythingElseRounds bounds how many times a flow re-asks "anything else
// I can help with?" after completing a booking/lookup before closing the
// call out, so a caller who keeps saying "yes" can't loop the conversation
// forever (SPEC_FULL.md's supplemented "anything else?" completion counter).
const MaxAnythingElseRounds = 2

// isDuplicateTransition reports whether next is a no-op transition back to
// the node already active: spec.md §4.5's duplicate-transition guard.
func isDuplicateTransition(current *NodeConfig, next *NodeConfig) bool {
	if current == nil || next == nil {
		return false
	}
	return current.Name == next.Name
}

// ShouldAskAnythingElse reports whether the flow should ask "anything else?"
// again, incrementing state's round counter as a side effect. Once the
// round counter reaches MaxAnythingElseRounds, it returns false so the
// caller's handler can route straight to closing instead.
func ShouldAskAnythingElse(state *State) bool {
	if state.Int("anything_else_count") >= MaxAnythingElseRounds {
		return false
	}
	state.Increment("anything_else_count", 1)
	return true
}

// CallEndedGuard implements the single-call-ended latch: tool handlers that
// perform end-of-call cleanup call this first and return the zero
// HandlerResult if it reports true, per spec.md §4.5.
func CallEndedGuard(state *State) bool {
	return state.CallEnded()
}
