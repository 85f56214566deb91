package frame

import "sync"

// Notifier is a single-writer, multi-reader one-shot broadcast primitive
// modeling the original's EventNotifier (spec.md §4.3): Notify() unblocks
// every current and future Wait() call exactly once. Backed by a channel
// closed exactly once, per SPEC_FULL.md §5.
type Notifier struct {
	mu     sync.Mutex
	ch     chan struct{}
	fired  bool
}

// NewNotifier returns a ready-to-use Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Notify fires the notifier, unblocking all current and future Wait callers.
// Calling Notify more than once is a no-op.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fired {
		return
	}
	n.fired = true
	close(n.ch)
}

// Wait returns a channel that is closed once Notify has fired. Callers
// select on it alongside ctx.Done() to respect cancellation.
func (n *Notifier) Wait() <-chan struct{} {
	return n.ch
}

// Fired reports whether Notify has already been called.
func (n *Notifier) Fired() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fired
}
