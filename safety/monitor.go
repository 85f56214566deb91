// Package safety implements the parallel safety classifiers, transcript
// assembly, and usage accounting that sit alongside the main conversation
// pipeline (spec.md §4.7).
package safety

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Adam-Behun/optimalbot-portal-sub000/config"
	"github.com/Adam-Behun/optimalbot-portal-sub000/core"
	"github.com/Adam-Behun/optimalbot-portal-sub000/flow"
	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/llm"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
	"github.com/Adam-Behun/optimalbot-portal-sub000/transport"
)

// MonitorVerdict is the safety monitor classifier's three-way decision.
type MonitorVerdict string

const (
	Emergency    MonitorVerdict = "emergency"
	StaffRequest MonitorVerdict = "staff_request"
	OK           MonitorVerdict = "ok"
)

// MonitorClassifierPrompt asks the safety LLM to bucket a caller's
// utterance into one of the three MonitorVerdict values.
const MonitorClassifierPrompt = `Classify the caller's utterance below into exactly one category:
EMERGENCY - the caller describes a medical emergency or life-threatening situation.
STAFF_REQUEST - the caller explicitly asks to speak to a person or staff member.
OK - neither of the above.
Respond with exactly one word: EMERGENCY, STAFF_REQUEST, or OK.`

// TTSDurationEstimate approximates how long text takes to speak, used to
// delay the transfer until the emergency/staff-request message finishes
// playing (spec.md §4.7's "sleep for TTS duration").
func TTSDurationEstimate(text string) time.Duration {
	words := len(strings.Fields(text))
	const wordsPerSecond = 2.5
	d := time.Duration(float64(words)/wordsPerSecond*1000) * time.Millisecond
	if d < 500*time.Millisecond {
		return 500 * time.Millisecond
	}
	return d
}

// Monitor runs the EMERGENCY/STAFF_REQUEST classifier in parallel with the
// main conversation branch and drives the orchestrator's transfer response.
type Monitor struct {
	classifier llm.ChatModel
	transport  transport.Transport
	cfg        config.SafetyMonitorsConfig
	coldTransfer config.ColdTransferConfig

	mu        sync.Mutex
	triggered bool
	state     *flow.State
}

// NewMonitor builds a Monitor using classifier for the EMERGENCY/STAFF_REQUEST
// decision and tr to execute a SIP transfer on either verdict.
func NewMonitor(classifier llm.ChatModel, tr transport.Transport, cfg config.SafetyMonitorsConfig, coldTransfer config.ColdTransferConfig) *Monitor {
	return &Monitor{classifier: classifier, transport: tr, cfg: cfg, coldTransfer: coldTransfer}
}

// SetState wires the shared call State so a transfer brackets
// transfer_in_progress the same way flow.ColdTransfer does, muting the STT
// filter stage while the transfer is in flight. Optional: a Monitor with no
// State attached still transfers, it just can't flip the flag.
func (m *Monitor) SetState(state *flow.State) {
	m.state = state
}

// ProcessFrame inspects Transcription frames for an emergency or
// staff-request verdict and, on the first match, speaks the configured
// message and initiates a SIP transfer. Every other frame passes through
// unchanged.
func (m *Monitor) ProcessFrame(ctx context.Context, f frame.Frame) ([]frame.Frame, error) {
	if f.Type != frame.Transcription {
		return []frame.Frame{f}, nil
	}

	m.mu.Lock()
	if m.triggered {
		m.mu.Unlock()
		return []frame.Frame{f}, nil
	}
	m.mu.Unlock()

	resp, err := m.classifier.Generate(ctx, []schema.Message{
		schema.NewSystemMessage(MonitorClassifierPrompt),
		schema.NewHumanMessage(f.Text),
	})
	if err != nil {
		o11y.FromContext(ctx).Warn(ctx, "safety monitor: classifier call failed, passing through", "error", err)
		return []frame.Frame{f}, nil
	}

	switch parseMonitorVerdict(resp.Text()) {
	case Emergency:
		return m.respondFrames(ctx, f, m.cfg.EmergencyMessage, m.cfg.AutoTransfer)
	case StaffRequest:
		return m.respondFrames(ctx, f, "Let me transfer you to a staff member now.", true)
	default:
		return []frame.Frame{f}, nil
	}
}

// respondFrames speaks message (interrupting anything already queued for
// TTS) and, if transfer is set, blocks for message's estimated speaking
// duration before initiating the SIP transfer — this call's own goroutine
// is this session's single-threaded task, so the block only suspends this
// session (spec.md §5's concurrency model).
func (m *Monitor) respondFrames(ctx context.Context, original frame.Frame, message string, transfer bool) ([]frame.Frame, error) {
	out := []frame.Frame{original, frame.NewStartInterruptionFrame(), frame.NewTTSSpeakFrame(message)}
	return out, m.respond(ctx, message, transfer)
}

// Processor adapts ProcessFrame to a frame.FrameProcessor.
func (m *Monitor) Processor() frame.FrameProcessor {
	return frame.PerFrame(m.ProcessFrame)
}

func (m *Monitor) respond(ctx context.Context, message string, transfer bool) error {
	m.mu.Lock()
	if m.triggered {
		m.mu.Unlock()
		return nil
	}
	m.triggered = true
	m.mu.Unlock()

	o11y.FromContext(ctx).Info(ctx, "safety monitor triggered", "transfer", transfer)

	if !transfer {
		return nil
	}

	select {
	case <-time.After(TTSDurationEstimate(message)):
	case <-ctx.Done():
		return ctx.Err()
	}

	if m.state != nil {
		m.state.Set("transfer_in_progress", true)
	}
	err := m.transport.SIPCallTransfer(ctx, m.coldTransfer.StaffNumber)
	if m.state != nil {
		m.state.Set("transfer_in_progress", false)
	}
	if err != nil {
		return core.NewError("safety.monitor", core.ErrTransferFailed, "safety transfer failed", err)
	}
	return nil
}

func parseMonitorVerdict(text string) MonitorVerdict {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "EMERGENCY"):
		return Emergency
	case strings.Contains(upper, "STAFF_REQUEST") || strings.Contains(upper, "STAFF REQUEST"):
		return StaffRequest
	default:
		return OK
	}
}
