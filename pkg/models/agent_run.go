package models

import "time"

// AgentType identifies which LLM-driven engine produced an AgentRun.
type AgentType string

const (
	AgentTypeEventClassifier AgentType = "event_classifier"
	AgentTypeVulnAnalyzer    AgentType = "vuln_analyzer"
	AgentTypeReachability    AgentType = "reachability"
	AgentTypePoCGenerator    AgentType = "poc_generator"
	AgentTypeReport          AgentType = "report"
)

// AgentRunStatus is the lifecycle state of one agent invocation.
type AgentRunStatus string

const (
	AgentRunRunning   AgentRunStatus = "running"
	AgentRunCompleted AgentRunStatus = "completed"
	AgentRunFailed    AgentRunStatus = "failed"
	AgentRunTimeout   AgentRunStatus = "timeout"
)

// AgentRun is one turn-budgeted LLM agent invocation, audited end to end:
// turn count, tool calls, token usage, and the target record it was
// invoked on (TargetType/TargetID, e.g. "event"/event.ID).
type AgentRun struct {
	ID              string
	AgentType       AgentType
	Status          AgentRunStatus
	EngineName      *string
	Model           *string
	TargetID        *string
	TargetType      *string
	TotalTurns      int
	TotalToolCalls  int
	InputTokens     int
	OutputTokens    int
	EstimatedCost   *float64
	DurationMs      *int
	ResultSummary   map[string]any
	Error           *string
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
