package store

import (
	"context"
	"database/sql"

	"github.com/owensanzas/vulnsentinel/pkg/cursor"
	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// EventRepo is the CRUD + domain-query surface for Event rows.
type EventRepo struct {
	q Querier
}

// NewEventRepo builds an EventRepo over q.
func NewEventRepo(q Querier) *EventRepo {
	return &EventRepo{q: q}
}

// BatchCreate inserts events, skipping any whose (library_id, type, ref)
// already exists. Returns the events actually inserted. This is how the
// collector stays idempotent across re-runs against the same watermark
// window.
func (r *EventRepo) BatchCreate(ctx context.Context, events []*models.Event) ([]*models.Event, error) {
	var inserted []*models.Event
	for _, e := range events {
		row := r.q.QueryRowContext(ctx, `
			INSERT INTO events (library_id, type, ref, source_url, author, event_at, title, message,
			                    related_issue_ref, related_issue_url, related_pr_ref, related_pr_url,
			                    related_commit_sha)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (library_id, type, ref) DO NOTHING
			RETURNING id, created_at, updated_at`,
			e.LibraryID, e.Type, e.Ref, e.SourceURL, e.Author, e.EventAt, e.Title, e.Message,
			e.RelatedIssueRef, e.RelatedIssueURL, e.RelatedPRRef, e.RelatedPRURL, e.RelatedCommitSHA)

		out := *e
		err := row.Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
		if err == sql.ErrNoRows {
			continue // duplicate key, ON CONFLICT DO NOTHING produced no row
		}
		if err != nil {
			return inserted, err
		}
		inserted = append(inserted, &out)
	}
	return inserted, nil
}

// GetLatestRef returns the ref of the most recently created Event of the
// given type for a library, used by the collector to find the
// previously-seen SHA/tag to stop paginating at.
func (r *EventRepo) GetLatestRef(ctx context.Context, libraryID string, eventType models.EventType) (string, error) {
	var ref string
	err := r.q.QueryRowContext(ctx, `
		SELECT ref FROM events WHERE library_id = $1 AND type = $2
		ORDER BY created_at DESC, id DESC LIMIT 1`, libraryID, eventType).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return ref, err
}

// ListUnclassified returns Events with a null classification, the event
// classifier's poll query.
func (r *EventRepo) ListUnclassified(ctx context.Context, limit int) ([]*models.Event, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events WHERE classification IS NULL
		ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEventsRows(rows)
}

// ListBugfixesWithoutAnalysis returns is_bugfix Events that have no
// UpstreamVuln row yet, the vuln analyzer's poll query.
func (r *EventRepo) ListBugfixesWithoutAnalysis(ctx context.Context, limit int) ([]*models.Event, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events e
		WHERE e.is_bugfix = true
		  AND NOT EXISTS (SELECT 1 FROM upstream_vulns v WHERE v.event_id = e.id)
		ORDER BY e.created_at ASC, e.id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEventsRows(rows)
}

// UpdateClassification writes the classifier's verdict and derives
// is_bugfix = (classification == security_bugfix) in the same statement,
// so the invariant can never drift from the write path.
// Calling this twice on the same event overwrites the prior verdict
// deterministically.
func (r *EventRepo) UpdateClassification(ctx context.Context, id string, classification models.EventClassification, confidence float64) error {
	isBugfix := classification == models.ClassificationSecurityBugfix
	_, err := r.q.ExecContext(ctx, `
		UPDATE events SET classification = $1, confidence = $2, is_bugfix = $3, updated_at = now()
		WHERE id = $4`, classification, confidence, isBugfix, id)
	return err
}

// GetByID fetches an Event by primary key.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*models.Event, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// ListPage returns a cursor page of events.
func (r *EventRepo) ListPage(ctx context.Context, after *cursor.Key, pageSize int) ([]*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
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
	return scanEventsRows(rows)
}

const eventColumns = `id, library_id, type, ref, source_url, author, event_at, title, message,
	related_issue_ref, related_issue_url, related_pr_ref, related_pr_url, related_commit_sha,
	classification, confidence, is_bugfix, created_at, updated_at`

func scanEvent(row *sql.Row) (*models.Event, error) {
	var e models.Event
	if err := row.Scan(&e.ID, &e.LibraryID, &e.Type, &e.Ref, &e.SourceURL, &e.Author, &e.EventAt,
		&e.Title, &e.Message, &e.RelatedIssueRef, &e.RelatedIssueURL, &e.RelatedPRRef, &e.RelatedPRURL,
		&e.RelatedCommitSHA, &e.Classification, &e.Confidence, &e.IsBugfix, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEventsRows(rows *sql.Rows) ([]*models.Event, error) {
	var out []*models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.LibraryID, &e.Type, &e.Ref, &e.SourceURL, &e.Author, &e.EventAt,
			&e.Title, &e.Message, &e.RelatedIssueRef, &e.RelatedIssueURL, &e.RelatedPRRef, &e.RelatedPRURL,
			&e.RelatedCommitSHA, &e.Classification, &e.Confidence, &e.IsBugfix, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
