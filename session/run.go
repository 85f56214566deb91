package session

import (
	"context"
	"fmt"

	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
)

// Run drives the call for its whole lifetime (spec.md §4.6 steps 4-7):
// register the transport's event handlers, assemble the frame chain, and
// pump frames between the transport and the chain until either side closes
// or a handler calls finish. It returns once the call has fully ended and
// cleanup has run exactly once.
func (cs *CallSession) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	cs.cancel = cancel
	cs.done = make(chan struct{})
	cs.inject = make(chan frame.Frame, frame.DefaultChannelBufferSize)

	ctx, span := o11y.StartSpan(ctx, "call_session", o11y.Attrs{
		"session_id":      cs.SessionID,
		"organization_id": cs.OrganizationID,
		"workflow":        cs.ClientName,
		"phone_number":    cs.PhoneNumber,
	})
	cs.span = span
	cs.ctx = ctx

	if cs.Store != nil {
		if err := cs.Store.CreateSession(ctx, cs.SessionID, cs.OrganizationID); err != nil {
			span.RecordError(err)
			span.SetStatus(o11y.StatusError, "create session record")
			span.End()
			cancel()
			return fmt.Errorf("session: create session record: %w", err)
		}
	}

	cs.registerHandlers()

	recv, err := cs.Transport.Recv(ctx)
	if err != nil {
		cs.Logger.Error(ctx, "transport recv failed to start", "error", err)
		cs.finish(ctx, "failed")
		return fmt.Errorf("session: transport recv: %w", err)
	}

	in := make(chan frame.Frame, frame.DefaultChannelBufferSize)
	go cs.mergeInput(ctx, recv, in)

	chain := cs.buildChain()
	if cs.STT != nil {
		chain = frame.Chain(cs.STT, chain)
	}

	out := make(chan frame.Frame, frame.DefaultChannelBufferSize)
	errCh := make(chan error, 1)
	go func() {
		err := chain.Process(ctx, in, out)
		close(out)
		errCh <- err
	}()

	for f := range out {
		if err := cs.Transport.Send(ctx, f); err != nil {
			cs.Logger.Error(ctx, "transport send failed", "error", err)
		}
	}

	runErr := <-errCh
	cs.finish(ctx, "completed")
	return runErr
}

// mergeInput fans transport.Recv's inbound frames and frames queued by
// event handlers (cs.inject) into a single input channel for the chain,
// closing it once recv closes or ctx is cancelled.
func (cs *CallSession) mergeInput(ctx context.Context, recv <-chan frame.Frame, in chan<- frame.Frame) {
	defer close(in)
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-recv:
			if !ok {
				return
			}
			select {
			case in <- f:
			case <-ctx.Done():
				return
			}
		case f := <-cs.inject:
			select {
			case in <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}
