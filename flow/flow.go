package flow

import "context"

// Flow is an assembled node graph for one kind of call (e.g. a clinic's
// dial-in intake flow, or a dial-out reminder flow). FlowManager drives
// whichever Flow a CallSession selects.
type Flow interface {
	// InitialNode returns the node a fresh call starts on.
	InitialNode() *NodeConfig

	// GlobalInstructions returns the system messages every node's context
	// carries regardless of ContextStrategy, rendered once at session start.
	GlobalInstructions() []string

	// TriageConfig returns this flow's classifier goal text for the triage
	// detector and IVR navigator, and the destination nodes triage should
	// route to.
	TriageConfig() TriageConfig

	// CreateHandoffEntryNode builds the node a foreign flow should resume on
	// when this flow hands the call off mid-conversation, using the shared
	// FlowState to decide (spec.md §4.5's handoff pattern: already-verified
	// callers skip straight past identity verification).
	CreateHandoffEntryNode(ctx context.Context, state *State) *NodeConfig
}

// TriageConfig names the goal text and destination nodes a Flow wants the
// triage detector and IVR navigator to use.
type TriageConfig struct {
	// IVRGoal is given to the ivr.Navigator as its navigation objective once
	// triage classifies the call as an automated menu.
	IVRGoal string
	// ConversationNode is the node to transition to once triage resolves to
	// a live conversation.
	ConversationNode *NodeConfig
	// VoicemailNode is the node to transition to once triage resolves to
	// voicemail (typically one that leaves a brief message and ends the
	// call).
	VoicemailNode *NodeConfig
}
