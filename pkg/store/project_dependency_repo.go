package store

import (
	"context"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// ProjectDependencyRepo is the CRUD + domain-query surface for
// ProjectDependency rows.
type ProjectDependencyRepo struct {
	q Querier
}

// NewProjectDependencyRepo builds a ProjectDependencyRepo over q.
func NewProjectDependencyRepo(q Querier) *ProjectDependencyRepo {
	return &ProjectDependencyRepo{q: q}
}

// Upsert inserts or updates a dependency keyed by (project_id, library_id,
// constraint_source). A "manual" source row is never overwritten by a
// scanner re-sync;
// callers performing an automated scan pass constraintSource="scan" so the
// unique key itself keeps the manual row untouched.
func (r *ProjectDependencyRepo) Upsert(ctx context.Context, dep *models.ProjectDependency) (*models.ProjectDependency, error) {
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO project_dependencies (project_id, library_id, constraint_expr, resolved_version,
		                                   constraint_source, notify_enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, library_id, constraint_source)
		DO UPDATE SET constraint_expr = EXCLUDED.constraint_expr,
		              resolved_version = EXCLUDED.resolved_version,
		              updated_at = now()
		RETURNING id, created_at, updated_at`,
		dep.ProjectID, dep.LibraryID, dep.ConstraintExpr, dep.ResolvedVersion,
		dep.ConstraintSource, dep.NotifyEnabled)

	out := *dep
	if err := row.Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByLibrary returns every dependency referencing libraryID, across all
// projects — the impact matcher's fan-out source.
func (r *ProjectDependencyRepo) ListByLibrary(ctx context.Context, libraryID string) ([]*models.ProjectDependency, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, project_id, library_id, constraint_expr, resolved_version, constraint_source,
		       notify_enabled, created_at, updated_at
		FROM project_dependencies WHERE library_id = $1`, libraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ProjectDependency
	for rows.Next() {
		var d models.ProjectDependency
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.LibraryID, &d.ConstraintExpr, &d.ResolvedVersion,
			&d.ConstraintSource, &d.NotifyEnabled, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// ListByProject returns every dependency declared by projectID.
func (r *ProjectDependencyRepo) ListByProject(ctx context.Context, projectID string) ([]*models.ProjectDependency, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, project_id, library_id, constraint_expr, resolved_version, constraint_source,
		       notify_enabled, created_at, updated_at
		FROM project_dependencies WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ProjectDependency
	for rows.Next() {
		var d models.ProjectDependency
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.LibraryID, &d.ConstraintExpr, &d.ResolvedVersion,
			&d.ConstraintSource, &d.NotifyEnabled, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// HasAnyForLibrary reports whether at least one ProjectDependency
// references libraryID — the predicate the impact matcher's poll query
// requires to avoid flooding the queue for unused libraries.
func (r *ProjectDependencyRepo) HasAnyForLibrary(ctx context.Context, libraryID string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM project_dependencies WHERE library_id = $1)`, libraryID).
		Scan(&exists)
	return exists, err
}
