package flow

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Adam-Behun/optimalbot-portal-sub000/core"
	"github.com/Adam-Behun/optimalbot-portal-sub000/frame"
	"github.com/Adam-Behun/optimalbot-portal-sub000/llm"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
)

// SummaryPrompt asks the active model to condense prior context into a short
// paragraph, used by ResetWithSummary transitions.
const SummaryPrompt = "Summarize the conversation so far in two or three sentences, preserving any facts the caller stated (name, reason for calling, answers already given)."

// ToolHandlerErrorMessage is spoken in place of a failed tool call's result
// so the turn stays in the current node instead of ending the call.
const ToolHandlerErrorMessage = "I apologize, there was an issue. Let me try again."

// FlowManager drives the node-graph turn loop described by spec.md §4.5:
// it holds the active Flow, the shared FlowState, and the running message
// context, and turns each caller utterance into zero or more node
// transitions plus TTS output frames.
type FlowManager struct {
	model llm.ChatModel
	flow  Flow
	state *State

	mu      sync.Mutex
	current *NodeConfig
	history []schema.Message
}

// NewFlowManager builds a FlowManager for flow, using model to drive node
// turns and state as the shared FlowState.
func NewFlowManager(model llm.ChatModel, f Flow, state *State) *FlowManager {
	return &FlowManager{model: model, flow: f, state: state}
}

// State returns the FlowManager's shared FlowState.
func (m *FlowManager) State() *State { return m.state }

// Current returns the currently active node, or nil before Start runs.
func (m *FlowManager) Current() *NodeConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns a copy of the running message history, for components
// outside the flow package that need to seed their own context from it
// (the IVR navigator's Activate, which starts from the conversation so far).
func (m *FlowManager) History() []schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schema.Message(nil), m.history...)
}

// LastHumanText returns the most recent caller utterance recorded in
// history, or "" if none has been recorded yet. Used to seed a node's task
// messages with the transcription that ended IVR navigation (spec.md's
// handle_ivr_status threading its transcription argument into the greeting
// node).
func (m *FlowManager) LastHumanText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		if hm, ok := m.history[i].(*schema.HumanMessage); ok {
			return hm.Text()
		}
	}
	return ""
}

// Start applies the flow's initial node (spec.md §4.5 "Initialization"):
// seed the context with global instructions and the initial node's own
// messages, run its pre_actions, and if RespondImmediately is set, produce
// the node's opening turn without waiting for caller input.
func (m *FlowManager) Start(ctx context.Context) ([]frame.Frame, error) {
	m.mu.Lock()
	for _, instr := range m.flow.GlobalInstructions() {
		m.history = append(m.history, schema.NewSystemMessage(instr))
	}
	m.mu.Unlock()

	return m.transitionTo(ctx, m.flow.InitialNode())
}

// ProcessFrame implements frame.PerFrameFunc: it drives one turn of the
// flow per caller Transcription frame and is a no-op passthrough for every
// other frame type.
func (m *FlowManager) ProcessFrame(ctx context.Context, f frame.Frame) ([]frame.Frame, error) {
	if f.Type != frame.Transcription {
		return []frame.Frame{f}, nil
	}

	m.mu.Lock()
	if m.state.CallEnded() {
		m.mu.Unlock()
		return nil, nil
	}
	m.history = append(m.history, schema.NewHumanMessage(f.Text))
	m.mu.Unlock()

	return m.runTurn(ctx)
}

// Processor adapts ProcessFrame to a frame.FrameProcessor for wiring into a
// session's pipeline.
func (m *FlowManager) Processor() frame.FrameProcessor {
	return frame.PerFrame(m.ProcessFrame)
}

// runTurn implements spec.md §4.5's "Turn loop": call the active LLM with
// the current node's tools bound, execute whichever tool call it makes, and
// apply the resulting transition or plain-text response.
func (m *FlowManager) runTurn(ctx context.Context) ([]frame.Frame, error) {
	m.mu.Lock()
	node := m.current
	msgs := append([]schema.Message(nil), m.history...)
	m.mu.Unlock()

	if node == nil {
		return nil, core.NewError("flow.manager", core.ErrInvalidInput, "runTurn called before Start", nil)
	}

	model := m.model
	tools := make([]schema.ToolDefinition, 0, len(node.Functions))
	for _, fn := range node.Functions {
		tools = append(tools, fn.ToolDefinition())
	}
	if len(tools) > 0 {
		model = model.BindTools(tools)
	}

	resp, err := model.Generate(ctx, msgs)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.history = append(m.history, resp)
	m.mu.Unlock()

	if len(resp.ToolCalls) == 0 {
		if text := resp.Text(); text != "" {
			return []frame.Frame{frame.NewTTSSpeakFrame(text)}, nil
		}
		return nil, nil
	}

	var out []frame.Frame
	for _, call := range resp.ToolCalls {
		frames, err := m.invokeTool(ctx, node, call)
		if err != nil {
			return out, err
		}
		out = append(out, frames...)
	}
	return out, nil
}

// invokeTool finds call's matching FunctionSchema on node, runs its
// handler, speaks any returned message, and applies any returned
// transition.
func (m *FlowManager) invokeTool(ctx context.Context, node *NodeConfig, call schema.ToolCall) ([]frame.Frame, error) {
	var fn *FunctionSchema
	for i := range node.Functions {
		if node.Functions[i].Name == call.Name {
			fn = &node.Functions[i]
			break
		}
	}
	if fn == nil {
		return nil, core.NewError("flow.manager", core.ErrToolHandler, "unknown tool call: "+call.Name, nil)
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil, core.NewError("flow.manager", core.ErrToolHandler, "invalid tool arguments for "+call.Name, err)
		}
	}

	result, err := fn.Handler(ctx, args, m.state)
	if err != nil {
		o11y.FromContext(ctx).Error(ctx, "flow: tool handler failed", "tool", call.Name, "error", err)
		m.mu.Lock()
		m.history = append(m.history, schema.NewToolMessage(call.ID, "error: "+err.Error()))
		m.mu.Unlock()
		// The turn stays in the current node and the error is spoken rather
		// than propagated: a failed tool call shouldn't tear down the call.
		return []frame.Frame{frame.NewTTSSpeakFrame(ToolHandlerErrorMessage)}, nil
	}

	m.mu.Lock()
	toolResultText := result.Message
	if toolResultText == "" {
		toolResultText = "ok"
	}
	m.history = append(m.history, schema.NewToolMessage(call.ID, toolResultText))
	m.mu.Unlock()

	var out []frame.Frame
	if result.Message != "" {
		out = append(out, frame.NewTTSSpeakFrame(result.Message))
	}

	if result.NextNode == nil {
		return out, nil
	}

	m.mu.Lock()
	duplicate := isDuplicateTransition(m.current, result.NextNode)
	m.mu.Unlock()
	if duplicate {
		return out, nil
	}

	transitionFrames, err := m.transitionTo(ctx, result.NextNode)
	if err != nil {
		return out, err
	}
	return append(out, transitionFrames...), nil
}

// GoTo forces a transition to target from outside a tool call, for the
// session orchestrator's own routing decisions: triage resolving to the
// flow's ConversationNode/VoicemailNode, a foreign flow's handoff entry
// node, or the node IVR navigation hands off to once it completes.
func (m *FlowManager) GoTo(ctx context.Context, target *NodeConfig) ([]frame.Frame, error) {
	return m.transitionTo(ctx, target)
}

// transitionTo applies target's ContextStrategy to the running history,
// sets it as the current node, runs its pre_actions, and — if
// RespondImmediately is set — produces its opening turn.
func (m *FlowManager) transitionTo(ctx context.Context, target *NodeConfig) ([]frame.Frame, error) {
	if err := m.applyContextStrategy(ctx, target); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = target
	m.mu.Unlock()

	out, err := m.runActions(ctx, target.PreActions)
	if err != nil {
		return out, err
	}

	if target.RespondImmediately {
		turnFrames, err := m.runTurn(ctx)
		out = append(out, turnFrames...)
		if err != nil {
			return out, err
		}
	}

	postFrames, err := m.RunPostActions(ctx, target)
	return append(out, postFrames...), err
}

func (m *FlowManager) applyContextStrategy(ctx context.Context, target *NodeConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch target.ContextStrategy {
	case Append:
		m.history = append(m.history, target.systemMessages()...)
	case Reset:
		m.history = target.systemMessages()
	case ResetWithSummary:
		prior := append([]schema.Message(nil), m.history...)
		m.mu.Unlock()
		summary, err := m.model.Generate(ctx, append(prior, schema.NewSystemMessage(SummaryPrompt)))
		m.mu.Lock()
		if err != nil {
			return err
		}
		m.history = append([]schema.Message{schema.NewSystemMessage("Prior conversation summary: " + summary.Text())}, target.systemMessages()...)
	}
	return nil
}

// runActions executes a node's pre_actions or post_actions in order,
// producing TTS frames for tts_say actions and an End frame for
// end_conversation (spec.md §4.5's action list).
func (m *FlowManager) runActions(ctx context.Context, actions []Action) ([]frame.Frame, error) {
	var out []frame.Frame
	for _, action := range actions {
		switch action.Type {
		case ActionTTSSay:
			out = append(out, frame.NewTTSSpeakFrame(action.Text))
		case ActionFunction:
			if action.Handler != nil {
				if err := action.Handler(ctx, m.state); err != nil {
					return out, core.NewError("flow.manager", core.ErrToolHandler, "action handler failed", err)
				}
			}
		case ActionEndConversation:
			m.state.MarkCallEnded()
			out = append(out, frame.NewEndFrame())
		}
	}
	return out, nil
}

// RunPostActions executes target's post_actions (spec.md §4.5 Turn loop step
// 5). transitionTo calls this automatically on every transition, once
// pre_actions and any immediate turn have run, so a node whose closing
// behavior is an end_conversation post_action actually ends the call.
func (m *FlowManager) RunPostActions(ctx context.Context, target *NodeConfig) ([]frame.Frame, error) {
	return m.runActions(ctx, target.PostActions)
}
