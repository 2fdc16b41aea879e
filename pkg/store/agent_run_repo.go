package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// AgentRunRepo is the CRUD surface for the AgentRun/AgentToolCall audit log.
type AgentRunRepo struct {
	q Querier
}

// NewAgentRunRepo builds an AgentRunRepo over q.
func NewAgentRunRepo(q Querier) *AgentRunRepo {
	return &AgentRunRepo{q: q}
}

// Flush persists one AgentRun and all of its AgentToolCalls in a single
// call, the agent loop's one-flush-per-run contract. Callers are expected
// to pass a *sql.Tx as q so the run and its tool calls commit atomically.
func (r *AgentRunRepo) Flush(ctx context.Context, run *models.AgentRun, calls []*models.AgentToolCall) (*models.AgentRun, error) {
	summary, err := json.Marshal(run.ResultSummary)
	if err != nil {
		return nil, err
	}
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO agent_runs (agent_type, status, engine_name, model, target_id, target_type,
		                        total_turns, total_tool_calls, input_tokens, output_tokens,
		                        estimated_cost, duration_ms, result_summary, error, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`,
		run.AgentType, run.Status, run.EngineName, run.Model, run.TargetID, run.TargetType,
		run.TotalTurns, run.TotalToolCalls, run.InputTokens, run.OutputTokens, run.EstimatedCost,
		run.DurationMs, summary, run.Error, run.EndedAt)

	out := *run
	if err := row.Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}

	for _, c := range calls {
		input, err := json.Marshal(c.ToolInput)
		if err != nil {
			return nil, err
		}
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO agent_tool_calls (run_id, turn, seq, tool_name, tool_input, output_chars,
			                              duration_ms, is_error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			out.ID, c.Turn, c.Seq, c.ToolName, input, c.OutputChars, c.DurationMs, c.IsError); err != nil {
			return nil, err
		}
	}

	return &out, nil
}

// GetByID fetches an AgentRun by primary key.
func (r *AgentRunRepo) GetByID(ctx context.Context, id string) (*models.AgentRun, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, agent_type, status, engine_name, model, target_id, target_type, total_turns,
		       total_tool_calls, input_tokens, output_tokens, estimated_cost, duration_ms,
		       result_summary, error, ended_at, created_at, updated_at
		FROM agent_runs WHERE id = $1`, id)

	var run models.AgentRun
	var summary []byte
	if err := row.Scan(&run.ID, &run.AgentType, &run.Status, &run.EngineName, &run.Model, &run.TargetID,
		&run.TargetType, &run.TotalTurns, &run.TotalToolCalls, &run.InputTokens, &run.OutputTokens,
		&run.EstimatedCost, &run.DurationMs, &summary, &run.Error, &run.EndedAt, &run.CreatedAt,
		&run.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(summary) > 0 {
		_ = json.Unmarshal(summary, &run.ResultSummary)
	}
	return &run, nil
}

// ListToolCalls returns every AgentToolCall for a run, ordered by
// (turn, seq), the stable replay order.
func (r *AgentRunRepo) ListToolCalls(ctx context.Context, runID string) ([]*models.AgentToolCall, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, run_id, turn, seq, tool_name, tool_input, output_chars, duration_ms, is_error,
		       created_at, updated_at
		FROM agent_tool_calls WHERE run_id = $1 ORDER BY turn ASC, seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AgentToolCall
	for rows.Next() {
		var c models.AgentToolCall
		var input []byte
		if err := rows.Scan(&c.ID, &c.RunID, &c.Turn, &c.Seq, &c.ToolName, &input, &c.OutputChars,
			&c.DurationMs, &c.IsError, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if len(input) > 0 {
			_ = json.Unmarshal(input, &c.ToolInput)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
