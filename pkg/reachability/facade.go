// Package reachability implements the Reachability stage: for a ClientVuln
// in pipeline-status pending or path_searching, it determines whether the
// affected library functions are reachable from the client project's fuzz
// targets, falling back to a shortest-path search, and finalizes the
// verdict.
package reachability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/owensanzas/vulnsentinel/pkg/githubapi"
	"github.com/owensanzas/vulnsentinel/pkg/models"
	"github.com/owensanzas/vulnsentinel/pkg/store"
)

const mainEntryPoint = "main"

// Engine runs one Reachability cycle.
type Engine struct {
	db        *sql.DB
	gh        *githubapi.Client
	graph     Store
	log       *slog.Logger
	batchSize int
}

// Config configures an Engine.
type Config struct {
	BatchSize int
}

// New builds a reachability Engine.
func New(db *sql.DB, gh *githubapi.Client, graph Store, cfg Config, log *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: db, gh: gh, graph: graph, log: log.With("component", "reachability"), batchSize: cfg.BatchSize}
}

// ProcessPending is the stage's scheduler.WorkFunc.
func (e *Engine) ProcessPending(ctx context.Context) (int, error) {
	cvRepo := store.NewClientVulnRepo(e.db)

	pending, err := cvRepo.ListPendingPipeline(ctx, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("reachability: list pending: %w", err)
	}

	processed := 0
	for _, cv := range pending {
		if err := e.processOne(ctx, cv); err != nil {
			e.log.Error("reachability check failed, leaving for retry", "client_vuln_id", cv.ID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (e *Engine) processOne(ctx context.Context, cv *models.ClientVuln) error {
	cvRepo := store.NewClientVulnRepo(e.db)
	vulnRepo := store.NewUpstreamVulnRepo(e.db)
	libRepo := store.NewLibraryRepo(e.db)
	projectRepo := store.NewProjectRepo(e.db)

	// Step 1.
	if err := cvRepo.MarkPathSearching(ctx, cv.ID); err != nil {
		return fmt.Errorf("mark path searching: %w", err)
	}

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

	// Step 2.
	targets := vuln.AffectedFunctions
	if len(targets) == 0 {
		targets = e.fallbackExtractFunctions(ctx, lib, vuln)
	}
	if len(targets) == 0 {
		return cvRepo.Finalize(ctx, cv.ID, false, map[string]any{
			"found":    false,
			"strategy": "no_affected_functions",
		})
	}

	// Step 3.
	clientVersion := valueOr(project.CurrentVersion, project.PinnedRef)
	if clientVersion == "" {
		clientVersion = project.DefaultBranch
	}
	clientSnapshotID, err := e.ensureSnapshot(ctx, project.RepoURL, clientVersion)
	if err != nil {
		return cvRepo.Finalize(ctx, cv.ID, false, map[string]any{
			"found":    false,
			"strategy": "build_failed",
			"error":    err.Error(),
		})
	}

	libVersion := valueOr(cv.ResolvedVersion, nil)
	if libVersion == "" {
		libVersion = vuln.CommitSHA
	}
	librarySnapshotID, err := e.ensureSnapshot(ctx, lib.RepoURL, libVersion)
	if err != nil {
		return cvRepo.Finalize(ctx, cv.ID, false, map[string]any{
			"found":    false,
			"strategy": "build_failed",
			"error":    err.Error(),
		})
	}

	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	// Step 4: fuzzer-reach strategy.
	fuzzers, err := e.graph.ListFuzzerInfo(ctx, clientSnapshotID)
	if err != nil {
		return fmt.Errorf("list fuzzer info: %w", err)
	}
	for _, fz := range fuzzers {
		reachable, err := e.graph.ReachableFunctionsByOneFuzzer(ctx, clientSnapshotID, fz.Name, nil)
		if err != nil {
			return fmt.Errorf("reachable functions for fuzzer %s: %w", fz.Name, err)
		}
		for _, rf := range reachable {
			if targetSet[rf.Name] {
				return cvRepo.Finalize(ctx, cv.ID, true, map[string]any{
					"found":              true,
					"strategy":           "fuzzer_reaches",
					"searched_functions": targets,
					"client_snapshot_id": clientSnapshotID,
					"library_snapshot_id": librarySnapshotID,
					"depth":              rf.Depth,
					"fuzzer":             fz.Name,
				})
			}
		}
	}

	// Step 5: shortest-path fallback.
	for _, target := range targets {
		path, err := e.graph.ShortestPath(ctx, clientSnapshotID, mainEntryPoint, target)
		if err != nil {
			return fmt.Errorf("shortest path to %s: %w", target, err)
		}
		if path != nil && path.PathsFound > 0 {
			return cvRepo.Finalize(ctx, cv.ID, true, map[string]any{
				"found":               true,
				"strategy":            "shortest_path",
				"searched_functions":  targets,
				"client_snapshot_id":  clientSnapshotID,
				"library_snapshot_id": librarySnapshotID,
				"depth":               path.Length,
				"call_chain":          path.Paths,
			})
		}
	}

	// Step 6/7: both strategies exhausted.
	return cvRepo.Finalize(ctx, cv.ID, false, map[string]any{
		"found":               false,
		"strategy":            "exhausted",
		"searched_functions":  targets,
		"client_snapshot_id":  clientSnapshotID,
		"library_snapshot_id": librarySnapshotID,
	})
}

// ensureSnapshot implements "find_snapshot, then build_snapshot if missing".
func (e *Engine) ensureSnapshot(ctx context.Context, repoURL, version string) (string, error) {
	id, found, err := e.graph.FindSnapshot(ctx, repoURL, version)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}
	return e.graph.BuildSnapshot(ctx, repoURL, version)
}

// fallbackExtractFunctions implements the diff-based function extraction
// fallback.
func (e *Engine) fallbackExtractFunctions(ctx context.Context, lib *models.Library, vuln *models.UpstreamVuln) []string {
	owner, repo, err := githubapi.OwnerRepo(lib.RepoURL)
	if err != nil {
		e.log.Warn("cannot parse library repo_url for diff fallback", "library", lib.Name, "error", err)
		return nil
	}
	commit, err := e.gh.GetCommit(ctx, owner, repo, vuln.CommitSHA)
	if err != nil {
		e.log.Warn("failed to fetch commit for diff fallback", "commit", vuln.CommitSHA, "error", err)
		return nil
	}
	return ExtractFunctions(commit.Files)
}

func valueOr(primary *string, fallback *string) string {
	if primary != nil && *primary != "" {
		return *primary
	}
	if fallback != nil {
		return *fallback
	}
	return ""
}
