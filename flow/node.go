// Package flow implements the node-graph conversation engine: declarative
// NodeConfig states, a FlowManager that drives the turn loop against the
// active LLM, and the guard/transfer/verification subroutines every flow
// shares (SPEC_FULL.md §4.5).
package flow

import (
	"context"

	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
)

// ContextStrategy controls how a node's entry affects prior conversation
// context.
type ContextStrategy int

const (
	// Append leaves prior messages in place.
	Append ContextStrategy = iota
	// Reset replaces all prior messages with the node's own messages.
	Reset
	// ResetWithSummary replaces prior messages with an LLM-generated
	// summary followed by the node's own messages.
	ResetWithSummary
)

// ActionType identifies a pre/post action kind.
type ActionType string

const (
	ActionTTSSay         ActionType = "tts_say"
	ActionFunction       ActionType = "function"
	ActionEndConversation ActionType = "end_conversation"
)

// Action is one ordered pre- or post-action attached to a node.
type Action struct {
	Type ActionType
	// Text is the utterance for ActionTTSSay.
	Text string
	// Handler runs synchronously for ActionFunction actions.
	Handler func(ctx context.Context, state *State) error
}

// TTSSay builds a pre/post action that speaks text immediately.
func TTSSay(text string) Action { return Action{Type: ActionTTSSay, Text: text} }

// RunFunction builds a pre/post action that invokes handler synchronously.
func RunFunction(handler func(ctx context.Context, state *State) error) Action {
	return Action{Type: ActionFunction, Handler: handler}
}

// EndConversation builds a post-action that terminates the call.
func EndConversation() Action { return Action{Type: ActionEndConversation} }

// HandlerResult is what a FunctionSchema's Handler returns: an optional
// message to speak before any transition, and an optional next node to
// transition to.
type HandlerResult struct {
	Message  string
	NextNode *NodeConfig
}

// FunctionSchema declares one tool the LLM may call while a node is active.
type FunctionSchema struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
	Handler     func(ctx context.Context, args map[string]any, state *State) (HandlerResult, error)
}

// ToolDefinition converts the schema to the shape llm.ChatModel.BindTools
// expects.
func (f FunctionSchema) ToolDefinition() schema.ToolDefinition {
	return schema.ToolDefinition{
		Name:        f.Name,
		Description: f.Description,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": f.Properties,
			"required":   f.Required,
		},
	}
}

// NodeConfig is one declarative state of a conversation flow.
type NodeConfig struct {
	Name               string
	RoleMessages       []string
	TaskMessages       []string
	Functions          []FunctionSchema
	PreActions         []Action
	PostActions        []Action
	RespondImmediately bool
	ContextStrategy    ContextStrategy
}

// systemMessages renders RoleMessages+TaskMessages as schema.Message values,
// in that order, for Reset/ResetWithSummary context application.
func (n *NodeConfig) systemMessages() []schema.Message {
	msgs := make([]schema.Message, 0, len(n.RoleMessages)+len(n.TaskMessages))
	for _, m := range n.RoleMessages {
		msgs = append(msgs, schema.NewSystemMessage(m))
	}
	for _, m := range n.TaskMessages {
		msgs = append(msgs, schema.NewSystemMessage(m))
	}
	return msgs
}
