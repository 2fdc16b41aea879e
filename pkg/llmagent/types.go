// Package llmagent implements the turn-budgeted, tool-calling LLM agent
// loop shared by the event classifier and vuln analyzer.
// The loop itself is fully decoupled from any one agent's prompts or tool
// surface: callers supply a Spec and get back parsed output plus an audit
// trail — one reusable iteration loop, many thin callers.
package llmagent

import (
	"context"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in the conversation sent to the provider.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string // set on RoleTool messages: which call this answers
	ToolCalls  []ToolCall
}

// ToolCall is a single tool invocation the model requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object
}

// ToolResult is what a tool call dispatch produces, truncated before being
// appended back to the conversation.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// ToolDefinition describes one callable tool to the provider.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// ToolFunc is the common signature every tool implementation matches,
// closing over whatever HTTP client and resource identifiers it needs.
type ToolFunc func(ctx context.Context, args map[string]any) (text string, isError bool)

// Tool pairs a ToolDefinition with its implementation.
type Tool struct {
	Definition ToolDefinition
	Fn         ToolFunc
}

// Response is one provider turn.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	StopReason   string // e.g. "stop", "tool_calls", "length"
	InputTokens  int
	OutputTokens int
}

// Provider is the seam between the agent loop and whichever LLM backend is
// configured. The langchaingo-backed implementation lives in provider.go.
type Provider interface {
	Generate(ctx context.Context, model string, temperature float64, messages []Message, tools []ToolDefinition) (Response, error)
}

// Spec configures one agent type's run of the loop: its prompts, tool
// surface, result parser, and class-level knobs.
type Spec struct {
	AgentType models.AgentType
	EngineName string

	SystemPrompt string
	MaxTurns     int
	Temperature  float64
	Model        string

	CompressionEnabled  bool
	MaxContextTokens    int
	CompressionCriteria string

	// UrgencyMessage, if non-empty, is injected as a user turn when exactly
	// two turns remain, to push the model toward a final answer.
	UrgencyMessage string

	Tools map[string]Tool

	// EarlyStop reports whether assistant content already constitutes a
	// final answer, letting the loop exit before MaxTurns, e.g. "stop as soon as a well-formed JSON object/array
	// appears".
	EarlyStop func(content string) bool

	// Parse converts final assistant content into the caller's result
	// type. Called both on early stop and on turn exhaustion.
	Parse func(content string) (any, error)
}
