package llmagent

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/owensanzas/vulnsentinel/pkg/metrics"
	"github.com/owensanzas/vulnsentinel/pkg/models"
	"github.com/owensanzas/vulnsentinel/pkg/store"
)

// toolResultMaxChars is the truncation bound for a tool result appended
// back to the conversation.
const toolResultMaxChars = 15000

// compressionTriggerRatio is the fraction of MaxContextTokens at which
// context compression kicks in.
const compressionTriggerRatio = 0.8

// keepRecentTurns is how many of the most recent messages survive a
// compression pass untouched.
const keepRecentTurns = 4

// Controller runs the turn-budgeted tool-calling loop for any Spec and
// persists one AgentRun + its AgentToolCalls per invocation.
type Controller struct {
	Provider Provider
	DB       *sql.DB
	Log      *slog.Logger
}

// NewController builds a Controller.
func NewController(provider Provider, db *sql.DB) *Controller {
	return &Controller{Provider: provider, DB: db, Log: slog.With("component", "llmagent")}
}

// Run executes spec's agent loop against userPrompt, targeting
// (targetType, targetID) for audit purposes, and returns the parsed result
// alongside the persisted AgentRun row.
func (c *Controller) Run(ctx context.Context, spec Spec, userPrompt, targetType, targetID string) (any, *models.AgentRun, error) {
	start := time.Now()
	run := &models.AgentRun{
		ID:         uuid.NewString(),
		AgentType:  spec.AgentType,
		Status:     models.AgentRunRunning,
		EngineName: strPtr(spec.EngineName),
		Model:      strPtr(spec.Model),
		TargetID:   strPtr(targetID),
		TargetType: strPtr(targetType),
	}

	messages := []Message{
		{Role: RoleSystem, Content: spec.SystemPrompt},
		{Role: RoleUser, Content: userPrompt},
	}

	var toolDefs []ToolDefinition
	for _, t := range spec.Tools {
		toolDefs = append(toolDefs, t.Definition)
	}

	var calls []*models.AgentToolCall
	var finalContent string
	var runErr error
	status := models.AgentRunCompleted

	turn := 0
	for ; turn < spec.MaxTurns; turn++ {
		remaining := spec.MaxTurns - turn
		if remaining == 2 && spec.UrgencyMessage != "" {
			messages = append(messages, Message{Role: RoleUser, Content: spec.UrgencyMessage})
		}

		if spec.CompressionEnabled {
			messages = c.maybeCompress(ctx, spec, messages)
		}

		resp, err := c.Provider.Generate(ctx, spec.Model, spec.Temperature, messages, toolDefs)
		if err != nil {
			runErr = fmt.Errorf("llmagent: provider call failed on turn %d: %w", turn, err)
			status = models.AgentRunFailed
			break
		}

		run.InputTokens += resp.InputTokens
		run.OutputTokens += resp.OutputTokens
		run.TotalTurns++

		if len(resp.ToolCalls) > 0 {
			messages = append(messages, Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
			for seq, tc := range resp.ToolCalls {
				result := c.dispatch(ctx, spec, tc)
				calls = append(calls, &models.AgentToolCall{
					ID:        uuid.NewString(),
					Turn:      turn,
					Seq:       seq,
					ToolName:  tc.Name,
					ToolInput: map[string]any{"raw": tc.Arguments},
					OutputChars: len(result.Content),
					IsError:   result.IsError,
				})
				messages = append(messages, Message{Role: RoleTool, Content: truncate(result.Content), ToolCallID: tc.ID})
			}
			run.TotalToolCalls += len(resp.ToolCalls)
			continue
		}

		finalContent = resp.Content
		if spec.EarlyStop != nil && spec.EarlyStop(finalContent) {
			break
		}
		if resp.StopReason == "stop" || resp.StopReason == "" {
			break
		}
		messages = append(messages, Message{Role: RoleAssistant, Content: resp.Content})
	}

	var result any
	if runErr == nil {
		if turn >= spec.MaxTurns && finalContent == "" {
			status = models.AgentRunTimeout
		}
		parsed, perr := spec.Parse(finalContent)
		if perr != nil {
			if status == models.AgentRunCompleted {
				status = models.AgentRunTimeout
			}
			run.Error = strPtr(perr.Error())
		} else {
			result = parsed
		}
	}

	run.Status = status
	run.EstimatedCost = floatPtr(estimateCostUSD(spec.Model, run.InputTokens, run.OutputTokens))
	durationMs := int(time.Since(start).Milliseconds())
	run.DurationMs = &durationMs
	now := time.Now()
	run.EndedAt = &now
	if runErr != nil {
		run.Error = strPtr(runErr.Error())
	}

	if err := c.persist(ctx, run, calls); err != nil {
		c.Log.Error("failed to persist agent run", "run_id", run.ID, "error", err)
	}

	agentType := string(run.AgentType)
	metrics.AgentRunTokens.WithLabelValues(agentType, "input").Add(float64(run.InputTokens))
	metrics.AgentRunTokens.WithLabelValues(agentType, "output").Add(float64(run.OutputTokens))
	if run.EstimatedCost != nil {
		metrics.AgentRunCostUSD.WithLabelValues(agentType).Add(*run.EstimatedCost)
	}
	metrics.AgentRunDuration.WithLabelValues(agentType, string(run.Status)).Observe(time.Since(start).Seconds())

	if runErr != nil {
		return nil, run, runErr
	}
	return result, run, nil
}

// dispatch looks up and invokes the named tool. The spec.Tools map is the
// authoritative tool surface — an unknown name is an error result, not a
// panic, since it is the model's mistake, not the caller's.
func (c *Controller) dispatch(ctx context.Context, spec Spec, tc ToolCall) ToolResult {
	tool, ok := spec.Tools[tc.Name]
	if !ok {
		return ToolResult{CallID: tc.ID, Name: tc.Name, Content: fmt.Sprintf("unknown tool: %s", tc.Name), IsError: true}
	}
	args, err := parseArguments(tc.Arguments)
	if err != nil {
		return ToolResult{CallID: tc.ID, Name: tc.Name, Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}
	}
	text, isErr := tool.Fn(ctx, args)
	return ToolResult{CallID: tc.ID, Name: tc.Name, Content: text, IsError: isErr}
}

// maybeCompress folds every message but the last keepRecentTurns into a
// single assistant summary once the running token estimate crosses
// compressionTriggerRatio of MaxContextTokens.
func (c *Controller) maybeCompress(ctx context.Context, spec Spec, messages []Message) []Message {
	if spec.MaxContextTokens == 0 || len(messages) <= keepRecentTurns+1 {
		return messages
	}
	if estimateTokens(messages) < int(float64(spec.MaxContextTokens)*compressionTriggerRatio) {
		return messages
	}

	head := messages[:len(messages)-keepRecentTurns]
	tail := messages[len(messages)-keepRecentTurns:]

	summary, err := c.Provider.Generate(ctx, spec.Model, 0, append(head, Message{
		Role:    RoleUser,
		Content: "Summarize the conversation so far for continued analysis. " + spec.CompressionCriteria,
	}), nil)
	if err != nil {
		c.Log.Warn("context compression failed, continuing uncompressed", "error", err)
		return messages
	}

	compressed := []Message{messages[0], {Role: RoleAssistant, Content: summary.Content}}
	compressed = append(compressed, tail...)
	return compressed
}

func (c *Controller) persist(ctx context.Context, run *models.AgentRun, calls []*models.AgentToolCall) error {
	if c.DB == nil {
		return nil
	}
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	repo := store.NewAgentRunRepo(tx)
	if _, err := repo.Flush(ctx, run, calls); err != nil {
		return err
	}
	return tx.Commit()
}

func truncate(s string) string {
	if len(s) <= toolResultMaxChars {
		return s
	}
	return s[:toolResultMaxChars] + fmt.Sprintf("\n... [truncated, %d chars total]", len(s))
}

// estimateTokens is a rough 4-chars-per-token heuristic, adequate for the
// compression threshold (not billing, which uses the provider's own
// reported counts).
func estimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func floatPtr(f float64) *float64 { return &f }
