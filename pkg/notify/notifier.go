package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/owensanzas/vulnsentinel/pkg/models"
	"github.com/owensanzas/vulnsentinel/pkg/store"
)

// Engine runs one Notification cycle.
type Engine struct {
	db        *sql.DB
	mailer    *Mailer
	fallback  string
	log       *slog.Logger
	batchSize int
}

// Config configures an Engine.
type Config struct {
	BatchSize int
	// FallbackTo is used when a project has no contact address (the binary
	// passes the configured notify-to address, else the mailer's own From
	// address), so a misconfigured project still produces a visible report
	// instead of being silently skipped forever.
	FallbackTo string
}

// New builds a notification Engine.
func New(db *sql.DB, mailer *Mailer, cfg Config, log *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: db, mailer: mailer, fallback: cfg.FallbackTo, log: log.With("component", "notify"), batchSize: cfg.BatchSize}
}

// NotifyPending is the stage's scheduler.WorkFunc.
func (e *Engine) NotifyPending(ctx context.Context) (int, error) {
	cvRepo := store.NewClientVulnRepo(e.db)

	pending, err := cvRepo.ListRecordedUnreported(ctx, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("notify: list recorded unreported: %w", err)
	}

	sent := 0
	for _, cv := range pending {
		if err := e.notifyOne(ctx, cv); err != nil {
			e.log.Error("notification failed, leaving for retry", "client_vuln_id", cv.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (e *Engine) notifyOne(ctx context.Context, cv *models.ClientVuln) error {
	cvRepo := store.NewClientVulnRepo(e.db)
	vulnRepo := store.NewUpstreamVulnRepo(e.db)
	libRepo := store.NewLibraryRepo(e.db)
	projectRepo := store.NewProjectRepo(e.db)

	vuln, err := vulnRepo.GetByID(ctx, cv.UpstreamVulnID)
	if err != nil {
		return fmt.Errorf("load upstream vuln: %w", err)
	}
	lib, err := libRepo.GetByID(ctx, vuln.LibraryID)
	if err != nil {
		return fmt.Errorf("load library: %w", err)
	}
	project, err := projectRepo.GetByID(ctx, cv.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	to := e.fallback
	if project.Contact != nil && *project.Contact != "" {
		to = *project.Contact
	}
	if to == "" {
		return fmt.Errorf("no recipient: project %s has no contact and no fallback configured", project.ID)
	}

	subject, body, err := renderNotification(cv, vuln, lib, project)
	if err != nil {
		return err
	}

	if err := e.mailer.Send(to, subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return cvRepo.SetReport(ctx, cv.ID, map[string]any{
		"type":    "email",
		"to":      to,
		"subject": subject,
	})
}
