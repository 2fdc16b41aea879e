package impact

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func upstreamVulnCols() []string {
	return []string{"id", "event_id", "library_id", "commit_sha", "vuln_type", "severity",
		"affected_versions", "summary", "reasoning", "status", "error_message", "upstream_poc",
		"affected_functions", "detected_at", "published_at", "created_at", "updated_at"}
}

func depCols() []string {
	return []string{"id", "project_id", "library_id", "constraint_expr", "resolved_version",
		"constraint_source", "notify_enabled", "created_at", "updated_at"}
}

// TestMatchPending_FansOutAndSkipsDuplicates: one published vuln with two
// dependent projects yields two new ClientVulns; a
// duplicate-key collision on a third dependency (two ProjectDependency rows
// for the same project+library) is silently skipped, not an error.
func TestMatchPending_FansOutAndSkipsDuplicates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM upstream_vulns v`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(upstreamVulnCols()).
			AddRow("uv-1", "ev-1", "lib-1", "deadbeef", "buffer_overflow", "critical",
				"<2.1", "summary", "reasoning", "published", nil, []byte("null"), []byte("null"),
				now, now, now, now))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM project_dependencies WHERE library_id = \$1`).
		WithArgs("lib-1").
		WillReturnRows(sqlmock.NewRows(depCols()).
			AddRow("dep-1", "proj-1", "lib-1", "^2.0", "2.0.3", "manual", true, now, now).
			AddRow("dep-2", "proj-2", "lib-1", "^2.0", "2.0.1", "scan", true, now, now).
			AddRow("dep-3", "proj-1", "lib-1", "^2.0", "2.0.3", "scan", true, now, now))

	mock.ExpectQuery(`INSERT INTO client_vulns`).
		WithArgs("uv-1", "proj-1", "^2.0", "manual", "2.0.3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("cv-1", now, now))
	mock.ExpectQuery(`INSERT INTO client_vulns`).
		WithArgs("uv-1", "proj-2", "^2.0", "scan", "2.0.1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("cv-2", now, now))
	// dep-3 is the same (project, library) pair as dep-1 via a different
	// constraint_source row; the unique (upstream_vuln_id, project_id)
	// index collides and ON CONFLICT DO NOTHING returns no row.
	mock.ExpectQuery(`INSERT INTO client_vulns`).
		WithArgs("uv-1", "proj-1", "^2.0", "scan", "2.0.3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))
	mock.ExpectCommit()

	e := New(db, Config{BatchSize: 50}, nil)
	n, err := e.MatchPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchPending_NoneDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM upstream_vulns v`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(upstreamVulnCols()))

	e := New(db, Config{BatchSize: 50}, nil)
	n, err := e.MatchPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
