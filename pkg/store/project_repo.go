package store

import (
	"context"
	"database/sql"

	"github.com/owensanzas/vulnsentinel/pkg/cursor"
	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// ProjectRepo is the CRUD + domain-query surface for Project rows.
type ProjectRepo struct {
	q Querier
}

// NewProjectRepo builds a ProjectRepo over q.
func NewProjectRepo(q Querier) *ProjectRepo {
	return &ProjectRepo{q: q}
}

// Create inserts a new Project. RepoURL is unique; a duplicate is reported
// as ErrConflict.
func (r *ProjectRepo) Create(ctx context.Context, p *models.Project) (*models.Project, error) {
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO projects (name, organization, repo_url, platform, default_branch, pinned_ref,
		                       auto_sync_deps, contact, current_version, scan_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, monitoring_since, created_at, updated_at`,
		p.Name, p.Organization, p.RepoURL, p.Platform, p.DefaultBranch, p.PinnedRef,
		p.AutoSyncDeps, p.Contact, p.CurrentVersion, p.ScanStatus)

	out := *p
	if err := row.Scan(&out.ID, &out.MonitoringSince, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &out, nil
}

// GetByID fetches a Project by primary key.
func (r *ProjectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, organization, repo_url, platform, default_branch, pinned_ref,
		       auto_sync_deps, contact, current_version, scan_status, scan_error,
		       monitoring_since, last_update_at, created_at, updated_at
		FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

// ListPage returns a cursor page of projects.
func (r *ProjectRepo) ListPage(ctx context.Context, after *cursor.Key, pageSize int) ([]*models.Project, error) {
	query := `
		SELECT id, name, organization, repo_url, platform, default_branch, pinned_ref,
		       auto_sync_deps, contact, current_version, scan_status, scan_error,
		       monitoring_since, last_update_at, created_at, updated_at
		FROM projects`
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

	var out []*models.Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateScanStatus records the outcome of a dependency-manifest scan cycle.
func (r *ProjectRepo) UpdateScanStatus(ctx context.Context, id, status string, scanErr *string, currentVersion *string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE projects
		SET scan_status = $1, scan_error = $2, current_version = COALESCE($3, current_version),
		    last_update_at = now(), updated_at = now()
		WHERE id = $4`, status, scanErr, currentVersion, id)
	return err
}

func scanProject(row *sql.Row) (*models.Project, error) {
	var p models.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Organization, &p.RepoURL, &p.Platform, &p.DefaultBranch,
		&p.PinnedRef, &p.AutoSyncDeps, &p.Contact, &p.CurrentVersion, &p.ScanStatus, &p.ScanError,
		&p.MonitoringSince, &p.LastUpdateAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProjectRows(rows *sql.Rows) (*models.Project, error) {
	var p models.Project
	if err := rows.Scan(&p.ID, &p.Name, &p.Organization, &p.RepoURL, &p.Platform, &p.DefaultBranch,
		&p.PinnedRef, &p.AutoSyncDeps, &p.Contact, &p.CurrentVersion, &p.ScanStatus, &p.ScanError,
		&p.MonitoringSince, &p.LastUpdateAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
