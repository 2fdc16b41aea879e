package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/owensanzas/vulnsentinel/pkg/cursor"
	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// LibraryRepo is the narrow CRUD + domain-query surface for Library rows.
type LibraryRepo struct {
	q Querier
}

// NewLibraryRepo builds a LibraryRepo over q (either a pool or a tx).
func NewLibraryRepo(q Querier) *LibraryRepo {
	return &LibraryRepo{q: q}
}

// UpsertByName inserts a Library by name, or returns the existing row when
// the name already exists with the same repo URL. A second library with the
// same name but a different URL is rejected as ErrConflict (fork
// protection). The operation is idempotent: repeated identical calls
// create exactly one row.
func (r *LibraryRepo) UpsertByName(ctx context.Context, lib *models.Library) (*models.Library, error) {
	existing, err := r.GetByName(ctx, lib.Name)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	if err == nil {
		if existing.RepoURL != lib.RepoURL {
			return nil, ErrConflict
		}
		return existing, nil
	}

	detail, err := json.Marshal(lib.CollectDetail)
	if err != nil {
		return nil, err
	}
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO libraries (name, repo_url, platform, ecosystem, default_branch, collect_status, collect_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, monitoring_since, created_at, updated_at`,
		lib.Name, lib.RepoURL, lib.Platform, lib.Ecosystem, lib.DefaultBranch, lib.CollectStatus, detail)

	out := *lib
	if err := row.Scan(&out.ID, &out.MonitoringSince, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &out, nil
}

// GetByName fetches a Library by its unique name.
func (r *LibraryRepo) GetByName(ctx context.Context, name string) (*models.Library, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, repo_url, platform, ecosystem, default_branch, latest_tag_version,
		       latest_commit_sha, monitoring_since, last_scanned_at, collect_status, collect_error,
		       collect_detail, created_at, updated_at
		FROM libraries WHERE name = $1`, name)
	return scanLibrary(row)
}

// GetByID fetches a Library by primary key.
func (r *LibraryRepo) GetByID(ctx context.Context, id string) (*models.Library, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, repo_url, platform, ecosystem, default_branch, latest_tag_version,
		       latest_commit_sha, monitoring_since, last_scanned_at, collect_status, collect_error,
		       collect_detail, created_at, updated_at
		FROM libraries WHERE id = $1`, id)
	return scanLibrary(row)
}

// ListDueForCollection returns libraries whose last_scanned_at is either
// null or older than cutoff, for the collector's polling stage.
func (r *LibraryRepo) ListDueForCollection(ctx context.Context, cutoff time.Time, limit int) ([]*models.Library, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, repo_url, platform, ecosystem, default_branch, latest_tag_version,
		       latest_commit_sha, monitoring_since, last_scanned_at, collect_status, collect_error,
		       collect_detail, created_at, updated_at
		FROM libraries
		WHERE last_scanned_at IS NULL OR last_scanned_at < $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Library
	for rows.Next() {
		lib, err := scanLibraryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, rows.Err()
}

// ListPage returns a cursor page of libraries ordered by (created_at DESC,
// id DESC), the total ordering used by every list endpoint.
func (r *LibraryRepo) ListPage(ctx context.Context, after *cursor.Key, pageSize int) ([]*models.Library, error) {
	query := `
		SELECT id, name, repo_url, platform, ecosystem, default_branch, latest_tag_version,
		       latest_commit_sha, monitoring_since, last_scanned_at, collect_status, collect_error,
		       collect_detail, created_at, updated_at
		FROM libraries`
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

	var out []*models.Library
	for rows.Next() {
		lib, err := scanLibraryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, rows.Err()
}

// UpdateWatermark persists the collector's post-cycle state: health,
// per-source detail, and (conditionally) last_scanned_at and the latest
// commit/tag pointers.
func (r *LibraryRepo) UpdateWatermark(ctx context.Context, id string, health string, collectError *string, detail map[string]any, advanceScan bool, latestCommitSHA, latestTagVersion *string) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	if advanceScan {
		_, err = r.q.ExecContext(ctx, `
			UPDATE libraries
			SET collect_status = $1, collect_error = $2, collect_detail = $3,
			    last_scanned_at = now(),
			    latest_commit_sha = COALESCE($4, latest_commit_sha),
			    latest_tag_version = COALESCE($5, latest_tag_version),
			    updated_at = now()
			WHERE id = $6`, health, collectError, detailJSON, latestCommitSHA, latestTagVersion, id)
	} else {
		_, err = r.q.ExecContext(ctx, `
			UPDATE libraries
			SET collect_status = $1, collect_error = $2, collect_detail = $3, updated_at = now()
			WHERE id = $4`, health, collectError, detailJSON, id)
	}
	return err
}

func scanLibrary(row *sql.Row) (*models.Library, error) {
	var l models.Library
	var detail []byte
	if err := row.Scan(&l.ID, &l.Name, &l.RepoURL, &l.Platform, &l.Ecosystem, &l.DefaultBranch,
		&l.LatestTagVersion, &l.LatestCommitSHA, &l.MonitoringSince, &l.LastScannedAt,
		&l.CollectStatus, &l.CollectError, &detail, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(detail) > 0 {
		_ = json.Unmarshal(detail, &l.CollectDetail)
	}
	return &l, nil
}

func scanLibraryRows(rows *sql.Rows) (*models.Library, error) {
	var l models.Library
	var detail []byte
	if err := rows.Scan(&l.ID, &l.Name, &l.RepoURL, &l.Platform, &l.Ecosystem, &l.DefaultBranch,
		&l.LatestTagVersion, &l.LatestCommitSHA, &l.MonitoringSince, &l.LastScannedAt,
		&l.CollectStatus, &l.CollectError, &detail, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if len(detail) > 0 {
		_ = json.Unmarshal(detail, &l.CollectDetail)
	}
	return &l, nil
}
