package models

import "time"

// AgentToolCall is one tool invocation within an AgentRun's ReAct loop.
// Turn/Seq together give a stable replay order: Turn is the LLM turn
// number, Seq the call's position within that turn (an agent may request
// more than one tool call per turn).
type AgentToolCall struct {
	ID          string
	RunID       string
	Turn        int
	Seq         int
	ToolName    string
	ToolInput   map[string]any
	OutputChars int
	DurationMs  *int
	IsError     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
