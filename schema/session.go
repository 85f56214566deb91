package schema

import "time"

// Turn is one request/response exchange within a Session.
type Turn struct {
	Input     Message
	Output    Message
	Timestamp time.Time
	Metadata  map[string]any
}

// Session is a generic multi-turn conversation with arbitrary carried
// state. The call orchestrator uses its own session.CallSession and
// flow.State types rather than this generic shape; Session is
// kept for other Beluga AI components built on the schema package.
type Session struct {
	ID        string
	Turns     []Turn
	State     map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}
