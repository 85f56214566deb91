// Package session wires one call's transport, LLMs, flow engine, triage and
// IVR detectors, and safety/observability components into a single running
// frame pipeline. It is the orchestrator spec.md §4.6 describes: construct
// once from a CallSession request, Run it for the life of the call, and
// clean up exactly once regardless of which path ended the call.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Adam-Behun/optimalbot-portal-sub000/config"
	"github.com/Adam-Behun/optimalbot-portal-sub000/core"
	"github.com/Adam-Behun/optimalbot-portal-sub000/flow"
	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/ivr"
	"github.com/Adam-Behun/optimalbot-portal-sub000/llm"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
	"github.com/Adam-Behun/optimalbot-portal-sub000/safety"
	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
	"github.com/Adam-Behun/optimalbot-portal-sub000/store"
	"github.com/Adam-Behun/optimalbot-portal-sub000/transport"
	"github.com/Adam-Behun/optimalbot-portal-sub000/triage"
)

// CallType distinguishes a caller-initiated leg from a bot-initiated one
// (spec.md §3's CallSession.call_type).
type CallType string

const (
	DialIn  CallType = "dial-in"
	DialOut CallType = "dial-out"
)

// CallSession is the per-call aggregate described by spec.md §3: request
// attributes plus every wired component the running pipeline needs. Built
// once via New, then driven by Run.
type CallSession struct {
	SessionID        string
	OrganizationID   string
	OrganizationSlug string
	ClientName       string
	PatientID        string
	CallType         CallType
	PhoneNumber      string
	CallData         map[string]any
	DebugMode        bool

	Config config.Config

	Transport transport.Transport
	STT       frame.FrameProcessor
	TTS       frame.FrameProcessor

	MainLLM       llm.ChatModel
	ClassifierLLM llm.ChatModel
	FallbackLLM   llm.ChatModel
	SafetyLLM     llm.ChatModel

	Flow flow.Flow

	Store      *store.SessionStore
	StateCache *store.StateCache

	UsageCosts safety.CostPerThousandTokens
	Logger     *o11y.Logger

	state           *flow.State
	flowMgr         *flow.FlowManager
	triageDetector  *triage.Detector
	navigator       *ivr.Navigator
	humanDetector   *ivr.HumanDetector
	safetyMonitor   *safety.Monitor
	outputValidator *safety.OutputValidator
	transcript      *safety.Transcript
	usage           *safety.UsageObserver
	dialout         *transport.DialoutManager
	sttMute         *sttMuteFilter

	mu          sync.Mutex
	span        o11y.Span
	cleanupOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	inject chan frame.Frame
}

// option adapts a typed *CallSession mutation into a core.Option, the
// functional-option mechanism every other configurable component in this
// module (llm.Middleware aside) is built on.
func option(fn func(*CallSession)) core.Option {
	return core.OptionFunc(func(target any) {
		cs, ok := target.(*CallSession)
		if !ok {
			return
		}
		fn(cs)
	})
}

func WithSessionID(id string) core.Option { return option(func(cs *CallSession) { cs.SessionID = id }) }
func WithOrganization(id, slug string) core.Option {
	return option(func(cs *CallSession) { cs.OrganizationID = id; cs.OrganizationSlug = slug })
}
func WithClientName(name string) core.Option { return option(func(cs *CallSession) { cs.ClientName = name }) }
func WithPatientID(id string) core.Option    { return option(func(cs *CallSession) { cs.PatientID = id }) }
func WithCallType(t CallType) core.Option    { return option(func(cs *CallSession) { cs.CallType = t }) }
func WithPhoneNumber(n string) core.Option   { return option(func(cs *CallSession) { cs.PhoneNumber = n }) }
func WithCallData(d map[string]any) core.Option {
	return option(func(cs *CallSession) { cs.CallData = d })
}
func WithDebugMode(on bool) core.Option { return option(func(cs *CallSession) { cs.DebugMode = on }) }
func WithConfig(cfg config.Config) core.Option { return option(func(cs *CallSession) { cs.Config = cfg }) }

func WithTransport(t transport.Transport) core.Option {
	return option(func(cs *CallSession) { cs.Transport = t })
}
func WithSTT(p frame.FrameProcessor) core.Option { return option(func(cs *CallSession) { cs.STT = p }) }
func WithTTS(p frame.FrameProcessor) core.Option { return option(func(cs *CallSession) { cs.TTS = p }) }

func WithMainLLM(m llm.ChatModel) core.Option       { return option(func(cs *CallSession) { cs.MainLLM = m }) }
func WithClassifierLLM(m llm.ChatModel) core.Option { return option(func(cs *CallSession) { cs.ClassifierLLM = m }) }
func WithFallbackLLM(m llm.ChatModel) core.Option   { return option(func(cs *CallSession) { cs.FallbackLLM = m }) }
func WithSafetyLLM(m llm.ChatModel) core.Option     { return option(func(cs *CallSession) { cs.SafetyLLM = m }) }

func WithFlow(f flow.Flow) core.Option { return option(func(cs *CallSession) { cs.Flow = f }) }

func WithStore(s *store.SessionStore) core.Option { return option(func(cs *CallSession) { cs.Store = s }) }
func WithStateCache(c *store.StateCache) core.Option {
	return option(func(cs *CallSession) { cs.StateCache = c })
}
func WithUsageCosts(costs safety.CostPerThousandTokens) core.Option {
	return option(func(cs *CallSession) { cs.UsageCosts = costs })
}
func WithLogger(l *o11y.Logger) core.Option { return option(func(cs *CallSession) { cs.Logger = l }) }

// New builds a CallSession from opts (spec.md §4.6 steps 1-3: load config,
// resolve providers, construct the flow) and wires its internal components.
// Transport, MainLLM, and Flow are required; SessionID defaults to a fresh
// UUID if not supplied.
func New(opts ...core.Option) (*CallSession, error) {
	cs := &CallSession{CallData: map[string]any{}}
	core.ApplyOptions(cs, opts...)

	if cs.Transport == nil {
		return nil, fmt.Errorf("session: Transport is required")
	}
	if cs.MainLLM == nil {
		return nil, fmt.Errorf("session: MainLLM is required")
	}
	if cs.Flow == nil {
		return nil, fmt.Errorf("session: Flow is required")
	}
	if cs.SessionID == "" {
		cs.SessionID = uuid.NewString()
	}
	if cs.CallType == "" {
		cs.CallType = DialIn
	}
	if cs.Logger == nil {
		cs.Logger = o11y.NewLogger()
	}

	cs.build()
	return cs, nil
}

// build wires the call's internal components from the request fields and
// options New already validated. Every optional component (triage, IVR,
// safety monitor, output validator, dialout manager) is constructed only
// when the dependency it needs is actually configured, matching the
// original's `if component:` guards throughout session.py/triage.py.
func (cs *CallSession) build() {
	cs.state = flow.NewState()
	cs.transcript = safety.NewTranscript()
	cs.usage = safety.NewUsageObserver(cs.UsageCosts)
	cs.sttMute = newSTTMuteFilter()

	cs.MainLLM = cs.wireLLM(cs.MainLLM, "main", cs.FallbackLLM)
	if cs.ClassifierLLM != nil {
		cs.ClassifierLLM = cs.wireLLM(cs.ClassifierLLM, "classifier", nil)
	}
	if cs.SafetyLLM != nil {
		cs.SafetyLLM = cs.wireLLM(cs.SafetyLLM, "safety", nil)
	}

	cs.flowMgr = flow.NewFlowManager(cs.MainLLM, cs.Flow, cs.state)

	if cs.ClassifierLLM != nil {
		cs.triageDetector = triage.NewDetector(cs.ClassifierLLM)
		cs.navigator = ivr.NewNavigator(cs.ClassifierLLM, cs.onIVRStatus, cs.onIVRKeypress)
		cs.humanDetector = ivr.NewHumanDetector(cs.ClassifierLLM, cs.onHumanDetectedDuringIVR)
	}

	if cs.Config.SafetyMonitors.Enabled && cs.SafetyLLM != nil {
		cs.safetyMonitor = safety.NewMonitor(cs.SafetyLLM, cs.Transport, cs.Config.SafetyMonitors, cs.coldTransferConfig())
		cs.safetyMonitor.SetState(cs.state)
	}
	if cs.Config.SafetyMonitors.OutputValidator.Enabled && cs.SafetyLLM != nil {
		cs.outputValidator = safety.NewOutputValidator(cs.SafetyLLM, cs.Config.SafetyMonitors.UnsafeOutputMessage, cs.onUnsafeOutput)
	}

	if cs.CallType == DialOut {
		cs.dialout = transport.NewDialoutManager(cs.Transport, cs.PhoneNumber)
	}
}

func (cs *CallSession) coldTransferConfig() config.ColdTransferConfig {
	return cs.Config.ColdTransfer
}

// wireLLM applies the usage-observer/logging/fallback middleware stack
// common to every LLM role this session drives (spec.md §4.7's usage
// accounting plus the teacher's llm.ApplyMiddleware composition pattern).
// Recording happens in AfterGenerate so it fires regardless of which
// component (FlowManager, triage detector, IVR navigator/human detector,
// safety monitor/validator) issued the call.
func (cs *CallSession) wireLLM(model llm.ChatModel, service string, fallback llm.ChatModel) llm.ChatModel {
	hooks := llm.Hooks{
		AfterGenerate: func(ctx context.Context, resp *schema.AIMessage, err error) {
			if err != nil || resp == nil {
				return
			}
			cs.usage.Record(service, resp.Usage)
			o11y.TokenUsage(ctx, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		},
	}
	mws := []llm.Middleware{llm.WithHooks(hooks), llm.WithLogging(cs.Logger.Slog())}
	if fallback != nil {
		mws = append(mws, llm.WithFallback(fallback))
	}
	return llm.ApplyMiddleware(model, mws...)
}

// terminalStatuses are call outcomes finish will not overwrite once set,
// so a late event (e.g. a transport error arriving after the call already
// completed) can't clobber the real outcome.
var terminalStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"voicemail": true,
}

// injectFrames queues frames produced by an event handler (running outside
// the pipeline goroutine) for delivery into the running chain's input, the
// same role Python's task.queue_frames plays in the original. It is a
// no-op once the session has finished.
func (cs *CallSession) injectFrames(frames []frame.Frame) {
	for _, f := range frames {
		select {
		case cs.inject <- f:
		case <-cs.done:
			return
		}
	}
}

// finish runs the call's cleanup sequence exactly once regardless of which
// path (normal completion, dial error, voicemail, safety transfer) reached
// it first: record the final status if none more specific already won,
// persist the transcript and usage summary, cancel the running pipeline,
// and purge the call recording (spec.md §4.8's HIPAA retention rule: no
// session, once ended, keeps its audio past cleanup).
func (cs *CallSession) finish(ctx context.Context, status string) {
	cs.cleanupOnce.Do(func() {
		if cs.Store != nil {
			if current, err := cs.Store.GetStatus(ctx, cs.SessionID); err == nil && !terminalStatuses[current] {
				if err := cs.Store.UpdateStatus(ctx, cs.SessionID, status); err != nil {
					cs.Logger.Error(ctx, "failed to record call status", "error", err)
				}
			}
			if err := cs.Store.SaveTranscript(ctx, cs.SessionID, cs.transcript.Assemble()); err != nil {
				cs.Logger.Error(ctx, "failed to save transcript", "error", err)
			}
			if err := cs.Store.SaveUsageSummary(ctx, cs.SessionID, cs.usage.Summary()); err != nil {
				cs.Logger.Error(ctx, "failed to save usage summary", "error", err)
			}
		}

		close(cs.done)
		if cs.cancel != nil {
			cs.cancel()
		}

		if cs.Store != nil {
			cs.Logger.Info(ctx, "purging call recording for HIPAA retention", "session_id", cs.SessionID)
			if err := cs.Store.MarkRecordingDeleted(ctx, cs.SessionID); err != nil {
				cs.Logger.Error(ctx, "failed to mark recording deleted", "error", err)
			}
		}

		if cs.span != nil {
			cs.span.SetAttributes(o11y.Attrs{"status": status})
			cs.span.End()
		}
	})
}
