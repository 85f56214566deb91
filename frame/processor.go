package frame

import (
	"context"
	"fmt"
)

// DefaultChannelBufferSize is the default capacity of the channels connecting
// chained processors, matching the teacher's default pipeline buffer.
const DefaultChannelBufferSize = 64

// FrameProcessor is a node in the pipeline. Implementations consume frames
// from in and forward or emit frames on out; any frame not consumed MUST be
// forwarded in order (spec.md §4.1).
type FrameProcessor interface {
	Process(ctx context.Context, in <-chan Frame, out chan<- Frame) error
}

// FrameProcessorFunc adapts a plain function to the FrameProcessor interface.
type FrameProcessorFunc func(ctx context.Context, in <-chan Frame, out chan<- Frame) error

func (f FrameProcessorFunc) Process(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	return f(ctx, in, out)
}

// PerFrameFunc processes one frame at a time and returns the frames to
// forward (zero or more). Returning a nil slice with a nil error drops the
// frame; returning the input frame unchanged is the default "forward"
// behavior expected of processors that don't act on a given frame type.
type PerFrameFunc func(ctx context.Context, f Frame) ([]Frame, error)

// PerFrame builds a FrameProcessor out of a PerFrameFunc, handling the
// channel plumbing and forwarding loop.
func PerFrame(fn PerFrameFunc) FrameProcessor {
	return FrameProcessorFunc(func(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case f, ok := <-in:
				if !ok {
					return nil
				}
				outs, err := fn(ctx, f)
				if err != nil {
					return err
				}
				for _, o := range outs {
					select {
					case out <- o:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		}
	})
}

// Passthrough forwards every frame unchanged. Useful as a no-op stage and in
// tests.
var Passthrough = PerFrame(func(_ context.Context, f Frame) ([]Frame, error) {
	return []Frame{f}, nil
})

// Chain composes processors into a single FrameProcessor, wiring an
// internal channel between each consecutive pair. A zero-length Chain is a
// valid passthrough. An error returned by any stage propagates from
// Chain.Process and cancels the remaining stages via ctx.
func Chain(procs ...FrameProcessor) FrameProcessor {
	return FrameProcessorFunc(func(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
		if len(procs) == 0 {
			return pipe(ctx, in, out)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		errCh := make(chan error, len(procs))
		cur := in
		for i, p := range procs {
			var next chan Frame
			if i == len(procs)-1 {
				// Last stage writes directly to the chain's output.
			} else {
				next = make(chan Frame, DefaultChannelBufferSize)
			}
			stageOut := out
			if next != nil {
				stageOut = next
			}
			go func(p FrameProcessor, in <-chan Frame, out chan<- Frame, isLast bool) {
				err := p.Process(ctx, in, out)
				if isLast {
					// nothing to close; out is the caller's channel
				} else if ch, ok := out.(chan Frame); ok {
					close(ch)
				}
				errCh <- err
			}(p, cur, stageOut, i == len(procs)-1)
			if next != nil {
				cur = next
			}
		}

		var firstErr error
		for range procs {
			if err := <-errCh; err != nil && firstErr == nil {
				firstErr = err
				cancel()
			}
		}
		return firstErr
	})
}

// pipe forwards every frame from in to out until in closes or ctx is done.
func pipe(ctx context.Context, in <-chan Frame, out chan<- Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-in:
			if !ok {
				return nil
			}
			select {
			case out <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// wrapErr formats an error the way the teacher's voice package does,
// e.g. "frame: transport recv: connection refused".
func wrapErr(op string, err error) error {
	return fmt.Errorf("frame: %s: %w", op, err)
}
