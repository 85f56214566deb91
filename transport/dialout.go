package transport

import (
	"context"
	"math/rand"
	"time"

	"github.com/Adam-Behun/optimalbot-portal-sub000/core"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
)

const (
	// DialoutMaxRetries is the maximum number of outbound dial attempts
	// before a dial-out leg is declared FAILED.
	DialoutMaxRetries = 3
	// DialoutBaseDelay is the base of the exponential backoff between
	// dial attempts: attempt n's delay is BaseDelay * 2^(n-1) + jitter.
	DialoutBaseDelay = time.Second
	// DialoutMaxJitter bounds the uniform random jitter added to each
	// retry delay, to avoid a thundering herd of simultaneous redials.
	DialoutMaxJitter = 500 * time.Millisecond
)

// DialoutManager drives the outbound dial attempt/backoff/retry sequence
// for a single call leg.
type DialoutManager struct {
	transport   Transport
	phoneNumber string

	attemptCount int
	isConnected  bool
}

// NewDialoutManager creates a DialoutManager that dials phoneNumber over
// transport.
func NewDialoutManager(transport Transport, phoneNumber string) *DialoutManager {
	return &DialoutManager{transport: transport, phoneNumber: phoneNumber}
}

// calculateDelay returns the backoff delay before the next attempt:
// BASE * 2^(n-1) + U(0, JITTER), where n is the attempt about to be made.
func (m *DialoutManager) calculateDelay() time.Duration {
	base := time.Duration(float64(DialoutBaseDelay) * float64(int(1)<<uint(m.attemptCount-1)))
	jitter := time.Duration(rand.Int63n(int64(DialoutMaxJitter) + 1))
	return base + jitter
}

// Attempt places one dial attempt if attempts remain and the call is not
// already connected. Returns false without dialing if neither condition holds.
func (m *DialoutManager) Attempt(ctx context.Context) (bool, error) {
	if m.attemptCount >= DialoutMaxRetries || m.isConnected {
		return false, nil
	}
	m.attemptCount++
	logger := o11y.FromContext(ctx)
	logger.Info(ctx, "dialout attempt", "attempt", m.attemptCount, "max", DialoutMaxRetries, "to", m.phoneNumber)
	if err := m.transport.StartDialout(ctx, m.phoneNumber); err != nil {
		return false, core.NewError("transport.dialout", core.ErrDialFailed, "dial attempt failed", err)
	}
	return true, nil
}

// Retry waits the backoff delay (respecting ctx cancellation) and makes the
// next attempt, if ShouldRetry permits one.
func (m *DialoutManager) Retry(ctx context.Context) (bool, error) {
	if !m.ShouldRetry() {
		return false, nil
	}
	delay := m.calculateDelay()
	o11y.FromContext(ctx).Info(ctx, "retrying dialout", "delay_ms", delay.Milliseconds(), "next_attempt", m.attemptCount+1)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return m.Attempt(ctx)
}

// MarkConnected records that the call was answered, ending the retry sequence.
func (m *DialoutManager) MarkConnected() {
	m.isConnected = true
}

// ShouldRetry reports whether another attempt is permitted: attempts remain
// and the call has not connected.
func (m *DialoutManager) ShouldRetry() bool {
	return m.attemptCount < DialoutMaxRetries && !m.isConnected
}

// AttemptCount returns the number of dial attempts made so far.
func (m *DialoutManager) AttemptCount() int {
	return m.attemptCount
}

// IsConnected reports whether the call has been answered.
func (m *DialoutManager) IsConnected() bool {
	return m.isConnected
}
