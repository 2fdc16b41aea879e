package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

func newMockRepo(t *testing.T) (*LibraryRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewLibraryRepo(db), mock
}

func libraryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "repo_url", "platform", "ecosystem", "default_branch", "latest_tag_version",
		"latest_commit_sha", "monitoring_since", "last_scanned_at", "collect_status", "collect_error",
		"collect_detail", "created_at", "updated_at",
	})
}

func TestLibraryRepo_UpsertByName_CreatesNewRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM libraries WHERE name = \$1`).
		WithArgs("libexpat").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery(`INSERT INTO libraries`).
		WithArgs("libexpat", "https://github.com/libexpat/libexpat", "github", "c", "master", models.CollectStatusHealthy, []byte("null")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "monitoring_since", "created_at", "updated_at"}).
			AddRow("lib-1", now, now, now))

	got, err := repo.UpsertByName(context.Background(), &models.Library{
		Name: "libexpat", RepoURL: "https://github.com/libexpat/libexpat",
		Platform: "github", Ecosystem: "c", DefaultBranch: "master",
		CollectStatus: models.CollectStatusHealthy,
	})
	require.NoError(t, err)
	require.Equal(t, "lib-1", got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLibraryRepo_UpsertByName_SameURLIsIdempotent(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM libraries WHERE name = \$1`).
		WithArgs("libexpat").
		WillReturnRows(libraryRows().AddRow("lib-1", "libexpat", "https://github.com/libexpat/libexpat",
			"github", "c", "master", nil, nil, now, nil, models.CollectStatusHealthy, nil, nil, now, now))

	got, err := repo.UpsertByName(context.Background(), &models.Library{
		Name: "libexpat", RepoURL: "https://github.com/libexpat/libexpat",
	})
	require.NoError(t, err)
	require.Equal(t, "lib-1", got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLibraryRepo_UpsertByName_DifferentURLIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM libraries WHERE name = \$1`).
		WithArgs("libexpat").
		WillReturnRows(libraryRows().AddRow("lib-1", "libexpat", "https://github.com/libexpat/libexpat",
			"github", "c", "master", nil, nil, now, nil, models.CollectStatusHealthy, nil, nil, now, now))

	_, err := repo.UpsertByName(context.Background(), &models.Library{
		Name: "libexpat", RepoURL: "https://github.com/a-fork/libexpat",
	})
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLibraryRepo_ListDueForCollection(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	cutoff := now.Add(-30 * time.Minute)

	mock.ExpectQuery(`SELECT .* FROM libraries`).
		WithArgs(cutoff, 10).
		WillReturnRows(libraryRows().
			AddRow("lib-1", "libexpat", "url1", "github", "c", "master", nil, nil, now, nil, "healthy", nil, nil, now, now).
			AddRow("lib-2", "zlib", "url2", "github", "c", "master", nil, nil, now, nil, "healthy", nil, nil, now, now))

	libs, err := repo.ListDueForCollection(context.Background(), cutoff, 10)
	require.NoError(t, err)
	require.Len(t, libs, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}
