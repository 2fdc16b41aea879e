// Package impact implements the ImpactMatcher stage: for every published
// UpstreamVuln not yet matched to any project, it materializes one
// ClientVuln per dependent ProjectDependency.
package impact

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/owensanzas/vulnsentinel/pkg/models"
	"github.com/owensanzas/vulnsentinel/pkg/store"
)

// Engine runs one ImpactMatcher cycle.
type Engine struct {
	db        *sql.DB
	log       *slog.Logger
	batchSize int
}

// Config configures an Engine.
type Config struct {
	BatchSize int
}

// New builds an impact matcher Engine.
func New(db *sql.DB, cfg Config, log *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: db, log: log.With("component", "impact"), batchSize: cfg.BatchSize}
}

// MatchPending is the stage's scheduler.WorkFunc. The poll query
// (ListPublishedWithoutImpact) already enforces that at least one
// ProjectDependency exists for the library, so vulns in libraries no
// project uses never flood the queue.
func (e *Engine) MatchPending(ctx context.Context) (int, error) {
	vulnRepo := store.NewUpstreamVulnRepo(e.db)

	vulns, err := vulnRepo.ListPublishedWithoutImpact(ctx, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("impact: list published without impact: %w", err)
	}

	processed := 0
	for _, v := range vulns {
		n, err := e.matchOne(ctx, v)
		if err != nil {
			e.log.Error("impact matching failed", "upstream_vuln_id", v.ID, "error", err)
			continue
		}
		processed += n
	}
	return processed, nil
}

// matchOne processes a single vuln in its own transaction, so one failure
// never poisons the batch.
func (e *Engine) matchOne(ctx context.Context, v *models.UpstreamVuln) (int, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	depRepo := store.NewProjectDependencyRepo(tx)
	cvRepo := store.NewClientVulnRepo(tx)

	deps, err := depRepo.ListByLibrary(ctx, v.LibraryID)
	if err != nil {
		return 0, fmt.Errorf("list dependencies: %w", err)
	}

	created := 0
	for _, dep := range deps {
		source := dep.ConstraintSource
		_, err := cvRepo.Create(ctx, &models.ClientVuln{
			UpstreamVulnID:   v.ID,
			ProjectID:        dep.ProjectID,
			ConstraintExpr:   dep.ConstraintExpr,
			ConstraintSource: &source,
			ResolvedVersion:  dep.ResolvedVersion,
		})
		if err == store.ErrAlreadyExists {
			// Another dependency row for the same project+library already
			// produced a ClientVuln; silently skip.
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create client vuln for project %s: %w", dep.ProjectID, err)
		}
		created++
	}

	if err := tx.Commit(); err != nil {
		return created, err
	}
	return created, nil
}
