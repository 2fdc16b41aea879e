// Package collector implements the EventCollector stage: for every Library
// due for a scan, it fans out to GitHub's commits/PRs/tags/issues endpoints
// in parallel, normalizes the results into Events, and advances the
// library's watermark.
package collector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/owensanzas/vulnsentinel/pkg/githubapi"
	"github.com/owensanzas/vulnsentinel/pkg/models"
	"github.com/owensanzas/vulnsentinel/pkg/scheduler"
	"github.com/owensanzas/vulnsentinel/pkg/store"
)

// Engine runs one EventCollector cycle: poll libraries due for collection,
// scan each with bounded concurrency.
type Engine struct {
	db  *sql.DB
	gh  *githubapi.Client
	sem *scheduler.Semaphore
	log *slog.Logger

	batchSize     int
	dueWindow     time.Duration
	concurrency   int
}

// Config configures an Engine.
type Config struct {
	BatchSize   int           // libraries considered per cycle
	DueWindow   time.Duration // how stale last_scanned_at must be
	Concurrency int           // max libraries scanned in parallel
}

// New builds a collector Engine.
func New(db *sql.DB, gh *githubapi.Client, cfg Config, log *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.DueWindow <= 0 {
		cfg.DueWindow = time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		db:          db,
		gh:          gh,
		sem:         scheduler.NewSemaphore(cfg.Concurrency),
		log:         log.With("component", "collector"),
		batchSize:   cfg.BatchSize,
		dueWindow:   cfg.DueWindow,
		concurrency: cfg.Concurrency,
	}
}

// CollectDue is the stage's scheduler.WorkFunc: it polls libraries due for
// a scan and runs collectOne for each with bounded concurrency, returning
// the total number of new events persisted.
func (e *Engine) CollectDue(ctx context.Context) (int, error) {
	libRepo := store.NewLibraryRepo(e.db)
	cutoff := time.Now().Add(-e.dueWindow)

	libs, err := libRepo.ListDueForCollection(ctx, cutoff, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("collector: list due libraries: %w", err)
	}

	var (
		mu       sync.Mutex
		total    int
		wg       sync.WaitGroup
		firstErr error
	)

	for _, lib := range libs {
		lib := lib
		if err := e.sem.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer e.sem.Release()
			defer wg.Done()

			n, err := e.collectOne(ctx, lib)
			mu.Lock()
			defer mu.Unlock()
			total += n
			if err != nil {
				e.log.Error("library collection failed", "library", lib.Name, "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}()
	}
	wg.Wait()

	// A single library's failure never aborts the cycle: each failure is
	// logged above, and firstErr is not returned, so the scheduler never
	// sees it as a failed cycle.
	_ = firstErr
	return total, nil
}

// collectOne runs the five sources for a single library in parallel, each
// isolated from the others' failures, applies reference parsing, persists
// new Events, and updates the library's watermark.
func (e *Engine) collectOne(ctx context.Context, lib *models.Library) (int, error) {
	owner, repo, err := githubapi.OwnerRepo(lib.RepoURL)
	if err != nil {
		return 0, fmt.Errorf("collector: %s: %w", lib.Name, err)
	}

	win := resolveWindow(lib)

	results := make(chan sourceResult, 5)
	var wg sync.WaitGroup
	runSource := func(fn func() sourceResult) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- fn()
		}()
	}

	runSource(func() sourceResult { return e.collectCommits(ctx, lib, owner, repo, win) })
	runSource(func() sourceResult { return e.collectPRMerges(ctx, lib, owner, repo, win) })
	runSource(func() sourceResult { return e.collectTags(ctx, lib, owner, repo, win) })
	runSource(func() sourceResult { return e.collectBugIssues(ctx, lib, owner, repo, win) })
	runSource(func() sourceResult { return e.collectGHSAHealth(ctx, owner, repo) })

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		allEvents  []*models.Event
		detail     = map[string]any{}
		errMsgs    []string
		anyData    bool
	)
	for res := range results {
		detail[res.name] = res.status
		if res.err != nil {
			errMsgs = append(errMsgs, fmt.Sprintf("%s: %v", res.name, res.err))
			continue
		}
		if len(res.events) > 0 {
			anyData = true
		}
		allEvents = append(allEvents, res.events...)
	}

	for _, ev := range allEvents {
		ApplyReferences(ev, owner, repo)
	}

	eventRepo := store.NewEventRepo(e.db)
	inserted, err := eventRepo.BatchCreate(ctx, allEvents)
	if err != nil {
		return 0, fmt.Errorf("collector: %s: batch create events: %w", lib.Name, err)
	}

	latestCommitSHA := latestOfType(inserted, models.EventTypeCommit)
	latestTagVersion := latestOfType(inserted, models.EventTypeTag)

	libRepo := store.NewLibraryRepo(e.db)
	health := models.CollectStatusHealthy
	var collectErr *string
	// Watermark rule: if any source errored, mark unhealthy
	// with the concatenated error, but still advance last_scanned_at as
	// long as at least one source returned data; if all sources succeeded
	// with zero rows, advance anyway; always persist the per-source detail.
	advance := true
	if len(errMsgs) > 0 {
		health = models.CollectStatusUnhealthy
		joined := strings.Join(errMsgs, "; ")
		collectErr = &joined
		advance = anyData
	}

	if err := libRepo.UpdateWatermark(ctx, lib.ID, health, collectErr, detail, advance, latestCommitSHA, latestTagVersion); err != nil {
		return len(inserted), fmt.Errorf("collector: %s: update watermark: %w", lib.Name, err)
	}

	return len(inserted), nil
}

// latestOfType returns the ref of the most recently-ordered event of typ
// among inserted, or nil if none. inserted preserves source order, not
// chronological order, so this picks the maximum EventAt rather than the
// first match.
func latestOfType(events []*models.Event, typ models.EventType) *string {
	var best *models.Event
	for _, e := range events {
		if e.Type != typ {
			continue
		}
		if best == nil || (e.EventAt != nil && best.EventAt != nil && e.EventAt.After(*best.EventAt)) {
			best = e
		}
	}
	if best == nil {
		return nil
	}
	ref := best.Ref
	return &ref
}
