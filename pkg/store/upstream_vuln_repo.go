package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/owensanzas/vulnsentinel/pkg/cursor"
	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// UpstreamVulnRepo is the CRUD + domain-query surface for UpstreamVuln rows.
type UpstreamVulnRepo struct {
	q Querier
}

// NewUpstreamVulnRepo builds an UpstreamVulnRepo over q.
func NewUpstreamVulnRepo(q Querier) *UpstreamVulnRepo {
	return &UpstreamVulnRepo{q: q}
}

// CreatePlaceholder inserts a status=analyzing row before the LLM is
// called, per the placeholder-before-call idiom: a
// crashed or slow analysis run still leaves an auditable row instead of
// leaving the source event eligible to be re-polled forever.
func (r *UpstreamVulnRepo) CreatePlaceholder(ctx context.Context, eventID, libraryID, commitSHA string) (*models.UpstreamVuln, error) {
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO upstream_vulns (event_id, library_id, commit_sha, status)
		VALUES ($1, $2, $3, 'analyzing')
		RETURNING id, detected_at, created_at, updated_at`, eventID, libraryID, commitSHA)

	v := &models.UpstreamVuln{EventID: eventID, LibraryID: libraryID, CommitSHA: commitSHA,
		Status: models.UpstreamVulnStatusAnalyzing}
	if err := row.Scan(&v.ID, &v.DetectedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return v, nil
}

// CreateAdditional inserts a further published vuln for an event that
// already has a placeholder, used when the analyzer's LLM call returns more
// than one vulnerability for a single commit.
func (r *UpstreamVulnRepo) CreateAdditional(ctx context.Context, v *models.UpstreamVuln) (*models.UpstreamVuln, error) {
	poc, err := json.Marshal(v.UpstreamPoC)
	if err != nil {
		return nil, err
	}
	funcs, err := json.Marshal(v.AffectedFunctions)
	if err != nil {
		return nil, err
	}
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO upstream_vulns (event_id, library_id, commit_sha, vuln_type, severity,
		                            affected_versions, summary, reasoning, status, upstream_poc,
		                            affected_functions, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'published', $9, $10, now())
		RETURNING id, detected_at, published_at, created_at, updated_at`,
		v.EventID, v.LibraryID, v.CommitSHA, v.VulnType, v.Severity, v.AffectedVersions,
		v.Summary, v.Reasoning, poc, funcs)

	out := *v
	out.Status = models.UpstreamVulnStatusPublished
	if err := row.Scan(&out.ID, &out.DetectedAt, &out.PublishedAt, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// PublishPlaceholder fills in and publishes the placeholder row, stamping
// published_at.
func (r *UpstreamVulnRepo) PublishPlaceholder(ctx context.Context, id string, v *models.UpstreamVuln) error {
	poc, err := json.Marshal(v.UpstreamPoC)
	if err != nil {
		return err
	}
	funcs, err := json.Marshal(v.AffectedFunctions)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		UPDATE upstream_vulns
		SET vuln_type = $1, severity = $2, affected_versions = $3, summary = $4, reasoning = $5,
		    upstream_poc = $6, affected_functions = $7, status = 'published', published_at = now(),
		    updated_at = now()
		WHERE id = $8`,
		v.VulnType, v.Severity, v.AffectedVersions, v.Summary, v.Reasoning, poc, funcs, id)
	return err
}

// MarkErrored records an analysis failure on the placeholder row without
// publishing it, so the row stays as an auditable "analyzing, errored"
// record rather than vanishing.
func (r *UpstreamVulnRepo) MarkErrored(ctx context.Context, id string, message string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE upstream_vulns SET error_message = $1, updated_at = now() WHERE id = $2`, message, id)
	return err
}

// GetByID fetches an UpstreamVuln by primary key.
func (r *UpstreamVulnRepo) GetByID(ctx context.Context, id string) (*models.UpstreamVuln, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+upstreamVulnColumns+` FROM upstream_vulns WHERE id = $1`, id)
	v, err := scanUpstreamVuln(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return v, err
}

// ListPublishedWithoutImpact returns published UpstreamVulns whose library
// has at least one ProjectDependency and for which no ClientVuln yet
// exists — the impact matcher's poll query. Once the
// matcher creates ClientVulns for a vuln it disappears from this list.
func (r *UpstreamVulnRepo) ListPublishedWithoutImpact(ctx context.Context, limit int) ([]*models.UpstreamVuln, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+upstreamVulnColumns+`
		FROM upstream_vulns v
		WHERE v.status = 'published'
		  AND EXISTS (SELECT 1 FROM project_dependencies d WHERE d.library_id = v.library_id)
		  AND NOT EXISTS (SELECT 1 FROM client_vulns c WHERE c.upstream_vuln_id = v.id)
		ORDER BY v.created_at ASC, v.id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUpstreamVulnRows(rows)
}

// ListPage returns a cursor page of upstream vulns.
func (r *UpstreamVulnRepo) ListPage(ctx context.Context, after *cursor.Key, pageSize int) ([]*models.UpstreamVuln, error) {
	query := `SELECT ` + upstreamVulnColumns + ` FROM upstream_vulns`
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
	return scanUpstreamVulnRows(rows)
}

const upstreamVulnColumns = `id, event_id, library_id, commit_sha, vuln_type, severity,
	affected_versions, summary, reasoning, status, error_message, upstream_poc, affected_functions,
	detected_at, published_at, created_at, updated_at`

func scanUpstreamVuln(row *sql.Row) (*models.UpstreamVuln, error) {
	var v models.UpstreamVuln
	var poc, funcs []byte
	if err := row.Scan(&v.ID, &v.EventID, &v.LibraryID, &v.CommitSHA, &v.VulnType, &v.Severity,
		&v.AffectedVersions, &v.Summary, &v.Reasoning, &v.Status, &v.ErrorMessage, &poc, &funcs,
		&v.DetectedAt, &v.PublishedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	unmarshalJSONBlobs(&v, poc, funcs)
	return &v, nil
}

func scanUpstreamVulnRows(rows *sql.Rows) ([]*models.UpstreamVuln, error) {
	var out []*models.UpstreamVuln
	for rows.Next() {
		var v models.UpstreamVuln
		var poc, funcs []byte
		if err := rows.Scan(&v.ID, &v.EventID, &v.LibraryID, &v.CommitSHA, &v.VulnType, &v.Severity,
			&v.AffectedVersions, &v.Summary, &v.Reasoning, &v.Status, &v.ErrorMessage, &poc, &funcs,
			&v.DetectedAt, &v.PublishedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		unmarshalJSONBlobs(&v, poc, funcs)
		out = append(out, &v)
	}
	return out, rows.Err()
}

func unmarshalJSONBlobs(v *models.UpstreamVuln, poc, funcs []byte) {
	if len(poc) > 0 {
		_ = json.Unmarshal(poc, &v.UpstreamPoC)
	}
	if len(funcs) > 0 {
		_ = json.Unmarshal(funcs, &v.AffectedFunctions)
	}
}
