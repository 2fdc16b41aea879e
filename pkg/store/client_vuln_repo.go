package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/owensanzas/vulnsentinel/pkg/cursor"
	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// ClientVulnRepo is the CRUD + domain-query surface for ClientVuln rows.
// State-machine validation for the customer-facing status lives in
// pkg/services; this repo performs the writes a validated transition asks
// for and nothing more.
type ClientVulnRepo struct {
	q Querier
}

// NewClientVulnRepo builds a ClientVulnRepo over q.
func NewClientVulnRepo(q Querier) *ClientVulnRepo {
	return &ClientVulnRepo{q: q}
}

// Create inserts a ClientVuln for (upstreamVulnID, projectID). A unique-key
// collision (the pair already exists, e.g. a second ProjectDependency for
// the same project+library) reports ErrAlreadyExists so the impact matcher
// can treat it as "already matched" rather than an error. The insert uses ON CONFLICT DO NOTHING rather than relying on a
// constraint-violation error, since the impact matcher calls this
// repeatedly inside a single per-vuln transaction — a real driver error
// here would abort that transaction for every dependency after the first
// collision.
func (r *ClientVulnRepo) Create(ctx context.Context, cv *models.ClientVuln) (*models.ClientVuln, error) {
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO client_vulns (upstream_vuln_id, project_id, pipeline_status, constraint_expr,
		                          constraint_source, resolved_version)
		VALUES ($1, $2, 'pending', $3, $4, $5)
		ON CONFLICT (upstream_vuln_id, project_id) DO NOTHING
		RETURNING id, created_at, updated_at`,
		cv.UpstreamVulnID, cv.ProjectID, cv.ConstraintExpr, cv.ConstraintSource, cv.ResolvedVersion)

	out := *cv
	out.PipelineStatus = models.PipelinePending
	if err := row.Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return &out, nil
}

// GetByID fetches a ClientVuln by primary key.
func (r *ClientVulnRepo) GetByID(ctx context.Context, id string) (*models.ClientVuln, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+clientVulnColumns+` FROM client_vulns WHERE id = $1`, id)
	cv, err := scanClientVuln(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return cv, err
}

// ListPendingPipeline returns ClientVulns in pipeline-status pending or
// path_searching — the reachability facade's poll query.
func (r *ClientVulnRepo) ListPendingPipeline(ctx context.Context, limit int) ([]*models.ClientVuln, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+clientVulnColumns+`
		FROM client_vulns
		WHERE pipeline_status IN ('pending', 'path_searching')
		ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClientVulnRows(rows)
}

// ListRecordedUnreported returns ClientVulns with status=recorded and no
// reported_at — the notifier's poll query.
func (r *ClientVulnRepo) ListRecordedUnreported(ctx context.Context, limit int) ([]*models.ClientVuln, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+clientVulnColumns+`
		FROM client_vulns
		WHERE status = 'recorded' AND reported_at IS NULL
		ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClientVulnRows(rows)
}

// MarkPathSearching transitions pipeline-status to path_searching and
// clears any prior error, step 1 of the reachability algorithm.
func (r *ClientVulnRepo) MarkPathSearching(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE client_vulns
		SET pipeline_status = 'path_searching', error_message = NULL,
		    analysis_started_at = COALESCE(analysis_started_at, now()), updated_at = now()
		WHERE id = $1`, id)
	return err
}

// SetPipelineError records a non-fatal reachability error without finalizing
// the row, so the next poll retries it.
func (r *ClientVulnRepo) SetPipelineError(ctx context.Context, id, message string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE client_vulns SET error_message = $1, updated_at = now() WHERE id = $2`, message, id)
	return err
}

// Finalize records the reachability verdict: is_affected=true moves to
// verified/recorded and
// stamps recorded_at; is_affected=false moves to not_affect/not_affect and
// stamps not_affect_at. Both stamp analysis_completed_at.
func (r *ClientVulnRepo) Finalize(ctx context.Context, id string, isAffected bool, reachablePath map[string]any) error {
	pathJSON, err := json.Marshal(reachablePath)
	if err != nil {
		return err
	}
	if isAffected {
		_, err = r.q.ExecContext(ctx, `
			UPDATE client_vulns
			SET pipeline_status = 'verified', is_affected = true, status = 'recorded',
			    recorded_at = now(), analysis_completed_at = now(), reachable_path = $1, updated_at = now()
			WHERE id = $2`, pathJSON, id)
	} else {
		_, err = r.q.ExecContext(ctx, `
			UPDATE client_vulns
			SET pipeline_status = 'not_affect', is_affected = false, status = 'not_affect',
			    not_affect_at = now(), analysis_completed_at = now(), reachable_path = $1, updated_at = now()
			WHERE id = $2`, pathJSON, id)
	}
	return err
}

// TransitionStatus performs a raw write of a validated customer-facing
// status transition. Callers must validate the transition with
// services.ValidateStatusTransition first — this method trusts its input.
func (r *ClientVulnRepo) TransitionStatus(ctx context.Context, id string, to models.Status, message string, at time.Time) error {
	var err error
	switch to {
	case models.StatusReported:
		_, err = r.q.ExecContext(ctx, `
			UPDATE client_vulns SET status = 'reported', reported_at = $1, updated_at = now()
			WHERE id = $2`, at, id)
	case models.StatusConfirmed:
		_, err = r.q.ExecContext(ctx, `
			UPDATE client_vulns SET status = 'confirmed', confirmed_at = $1, confirmed_msg = $2, updated_at = now()
			WHERE id = $3`, at, nullIfEmpty(message), id)
	case models.StatusFixed:
		_, err = r.q.ExecContext(ctx, `
			UPDATE client_vulns SET status = 'fixed', fixed_at = $1, fixed_msg = $2, updated_at = now()
			WHERE id = $3`, at, nullIfEmpty(message), id)
	case models.StatusNotAffect:
		_, err = r.q.ExecContext(ctx, `
			UPDATE client_vulns SET status = 'not_affect', not_affect_at = $1, updated_at = now()
			WHERE id = $2`, at, id)
	}
	return err
}

// SetReport stores the rendered notification report JSON and marks
// reported_at, used by the notifier after a successful send.
func (r *ClientVulnRepo) SetReport(ctx context.Context, id string, report map[string]any) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		UPDATE client_vulns SET report = $1, status = 'reported', reported_at = now(), updated_at = now()
		WHERE id = $2`, reportJSON, id)
	return err
}

// ListPage returns a cursor page of client vulns.
func (r *ClientVulnRepo) ListPage(ctx context.Context, after *cursor.Key, pageSize int) ([]*models.ClientVuln, error) {
	query := `SELECT ` + clientVulnColumns + ` FROM client_vulns`
	args := []any{}
	if after != nil {
		query += ` WHERE (created_at, id) < ($1, $2)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + placeholderIndex(len(args)+1)
	args = append(args, pageSize)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClientVulnRows(rows)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const clientVulnColumns = `id, upstream_vuln_id, project_id, pipeline_status, is_affected, error_message,
	analysis_started_at, analysis_completed_at, status, recorded_at, reported_at, not_affect_at,
	confirmed_at, confirmed_msg, fixed_at, fixed_msg, constraint_expr, constraint_source,
	resolved_version, fix_version, verdict, reachable_path, poc_results, report, created_at, updated_at`

func scanClientVuln(row *sql.Row) (*models.ClientVuln, error) {
	var cv models.ClientVuln
	var reachablePath, pocResults, report []byte
	if err := row.Scan(&cv.ID, &cv.UpstreamVulnID, &cv.ProjectID, &cv.PipelineStatus, &cv.IsAffected,
		&cv.ErrorMessage, &cv.AnalysisStartedAt, &cv.AnalysisCompletedAt, &cv.Status, &cv.RecordedAt,
		&cv.ReportedAt, &cv.NotAffectAt, &cv.ConfirmedAt, &cv.ConfirmedMsg, &cv.FixedAt, &cv.FixedMsg,
		&cv.ConstraintExpr, &cv.ConstraintSource, &cv.ResolvedVersion, &cv.FixVersion, &cv.Verdict,
		&reachablePath, &pocResults, &report, &cv.CreatedAt, &cv.UpdatedAt); err != nil {
		return nil, err
	}
	unmarshalClientVulnBlobs(&cv, reachablePath, pocResults, report)
	return &cv, nil
}

func scanClientVulnRows(rows *sql.Rows) ([]*models.ClientVuln, error) {
	var out []*models.ClientVuln
	for rows.Next() {
		var cv models.ClientVuln
		var reachablePath, pocResults, report []byte
		if err := rows.Scan(&cv.ID, &cv.UpstreamVulnID, &cv.ProjectID, &cv.PipelineStatus, &cv.IsAffected,
			&cv.ErrorMessage, &cv.AnalysisStartedAt, &cv.AnalysisCompletedAt, &cv.Status, &cv.RecordedAt,
			&cv.ReportedAt, &cv.NotAffectAt, &cv.ConfirmedAt, &cv.ConfirmedMsg, &cv.FixedAt, &cv.FixedMsg,
			&cv.ConstraintExpr, &cv.ConstraintSource, &cv.ResolvedVersion, &cv.FixVersion, &cv.Verdict,
			&reachablePath, &pocResults, &report, &cv.CreatedAt, &cv.UpdatedAt); err != nil {
			return nil, err
		}
		unmarshalClientVulnBlobs(&cv, reachablePath, pocResults, report)
		out = append(out, &cv)
	}
	return out, rows.Err()
}

func unmarshalClientVulnBlobs(cv *models.ClientVuln, reachablePath, pocResults, report []byte) {
	if len(reachablePath) > 0 {
		_ = json.Unmarshal(reachablePath, &cv.ReachablePath)
	}
	if len(pocResults) > 0 {
		_ = json.Unmarshal(pocResults, &cv.PoCResults)
	}
	if len(report) > 0 {
		_ = json.Unmarshal(report, &cv.Report)
	}
}
