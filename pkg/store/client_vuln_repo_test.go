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

func newMockClientVulnRepo(t *testing.T) (*ClientVulnRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewClientVulnRepo(db), mock
}

func TestClientVulnRepo_Create_NewRow(t *testing.T) {
	repo, mock := newMockClientVulnRepo(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO client_vulns`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("cv-1", now, now))

	constraintExpr := "^2.0"
	cv, err := repo.Create(context.Background(), &models.ClientVuln{
		UpstreamVulnID: "uv-1", ProjectID: "proj-1", ConstraintExpr: &constraintExpr,
	})
	require.NoError(t, err)
	require.Equal(t, "cv-1", cv.ID)
	require.Equal(t, models.PipelinePending, cv.PipelineStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestClientVulnRepo_Create_DuplicateIsSilentSkip exercises the "ON
// CONFLICT DO NOTHING ... RETURNING" idiom the impact matcher depends on:
// a collision must surface as ErrAlreadyExists via sql.ErrNoRows, never as a
// raw driver unique-violation error that would abort the caller's shared
// transaction.
func TestClientVulnRepo_Create_DuplicateIsSilentSkip(t *testing.T) {
	repo, mock := newMockClientVulnRepo(t)

	mock.ExpectQuery(`INSERT INTO client_vulns`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))

	_, err := repo.Create(context.Background(), &models.ClientVuln{
		UpstreamVulnID: "uv-1", ProjectID: "proj-1",
	})
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientVulnRepo_TransitionStatus_Reported(t *testing.T) {
	repo, mock := newMockClientVulnRepo(t)
	at := time.Now()

	mock.ExpectExec(`UPDATE client_vulns SET status = 'reported'`).
		WithArgs(at, "cv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.TransitionStatus(context.Background(), "cv-1", models.StatusReported, "", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientVulnRepo_Finalize_Affected(t *testing.T) {
	repo, mock := newMockClientVulnRepo(t)

	mock.ExpectExec(`UPDATE client_vulns\s+SET pipeline_status = 'verified'`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Finalize(context.Background(), "cv-1", true, map[string]any{"strategy": "fuzzer_reaches"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientVulnRepo_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockClientVulnRepo(t)

	mock.ExpectQuery(`SELECT .* FROM client_vulns WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
