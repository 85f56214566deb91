package frame

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ParallelPipeline runs two or more branches concurrently. Every incoming
// frame is duplicated to every branch; branch outputs are merged, preserving
// each branch's own emission order but interleaving across branches by
// arrival time (spec.md §4.1).
type ParallelPipeline struct {
	Branches []FrameProcessor
}

// NewParallelPipeline constructs a ParallelPipeline from the given branches.
func NewParallelPipeline(branches ...FrameProcessor) *ParallelPipeline {
	return &ParallelPipeline{Branches: branches}
}

// Process broadcasts every inbound frame to all branches and merges their
// outputs onto out. Fan-out, each branch's own Process, and each branch's
// fan-in merge all run under one errgroup.WithContext: the first one to
// return an error cancels the derived context, which unblocks every other
// goroutine's select on ctx.Done() rather than leaving them to drain.
func (p *ParallelPipeline) Process(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	if len(p.Branches) == 0 {
		return pipe(ctx, in, out)
	}

	g, ctx := errgroup.WithContext(ctx)

	branchIns := make([]chan Frame, len(p.Branches))
	for i := range branchIns {
		branchIns[i] = make(chan Frame, DefaultChannelBufferSize)
	}

	// Fan-out: broadcast every inbound frame to every branch.
	g.Go(func() error {
		defer func() {
			for _, bi := range branchIns {
				close(bi)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case f, ok := <-in:
				if !ok {
					return nil
				}
				for _, bi := range branchIns {
					select {
					case bi <- f:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		}
	})

	// Fan-in: merge each branch's output onto out, preserving its own
	// emission order while interleaving across branches by arrival time.
	for i, branch := range p.Branches {
		branch, bin := branch, branchIns[i]
		branchOut := make(chan Frame, DefaultChannelBufferSize)
		g.Go(func() error {
			defer close(branchOut)
			return branch.Process(ctx, bin, branchOut)
		})
		g.Go(func() error {
			for f := range branchOut {
				select {
				case out <- f:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// Gate is a stateful processor that blocks downstream forwarding of
// non-control frames until Open is called, mirroring MainBranchGate/TTSGate
// (spec.md §4.3). Control frames (interruption, end) always pass through.
type Gate struct {
	notifier *Notifier
	open     bool
	mu       sync.Mutex
}

// NewGate returns a Gate closed until Open or its Notifier fires.
func NewGate() *Gate {
	return &Gate{notifier: NewNotifier()}
}

// Open unblocks the gate immediately and for all future frames.
func (g *Gate) Open() {
	g.mu.Lock()
	g.open = true
	g.mu.Unlock()
	g.notifier.Notify()
}

// IsOpen reports the gate's current state.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Process blocks each non-control frame until the gate opens, then forwards
// it; control frames pass through immediately regardless of gate state.
func (g *Gate) Process(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-in:
			if !ok {
				return nil
			}
			if !f.IsControl() && !g.IsOpen() {
				select {
				case <-g.notifier.Wait():
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			select {
			case out <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
