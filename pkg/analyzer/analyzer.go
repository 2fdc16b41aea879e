// Package analyzer implements the VulnAnalyzer stage: for every bugfix
// Event not yet analyzed, it inserts a placeholder UpstreamVuln before
// calling the LLM, then fills it (and any sibling findings) in once the
// agent loop returns.
package analyzer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/owensanzas/vulnsentinel/pkg/githubapi"
	"github.com/owensanzas/vulnsentinel/pkg/llmagent"
	"github.com/owensanzas/vulnsentinel/pkg/models"
	"github.com/owensanzas/vulnsentinel/pkg/scheduler"
	"github.com/owensanzas/vulnsentinel/pkg/store"
)

// finding is one element of the analyzer's normalized output list.
type finding struct {
	VulnType          string         `json:"vuln_type"`
	Severity          string         `json:"severity"`
	AffectedVersions  string         `json:"affected_versions"`
	Summary           string         `json:"summary"`
	Reasoning         string         `json:"reasoning"`
	UpstreamPoC       map[string]any `json:"upstream_poc"`
	AffectedFunctions []string       `json:"affected_functions"`
}

// Engine runs one VulnAnalyzer cycle.
type Engine struct {
	db        *sql.DB
	gh        *githubapi.Client
	agent     *llmagent.Controller
	sem       *scheduler.Semaphore
	log       *slog.Logger
	batchSize int
	maxTurns  int
	model     string
}

// Config configures an Engine.
type Config struct {
	BatchSize   int
	MaxTurns    int // defaults to 15, deeper analysis than the classifier
	Model       string
	Concurrency int // max events analyzed in parallel per cycle
}

// New builds an analyzer Engine.
func New(db *sql.DB, gh *githubapi.Client, agent *llmagent.Controller, cfg Config, log *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: db, gh: gh, agent: agent, sem: scheduler.NewSemaphore(cfg.Concurrency),
		log: log.With("component", "analyzer"),
		batchSize: cfg.BatchSize, maxTurns: cfg.MaxTurns, model: cfg.Model}
}

// AnalyzePending is the stage's scheduler.WorkFunc. Events are analyzed
// with bounded concurrency: each analysis is one multi-turn LLM run, so a
// handful in flight at once hides provider latency without flooding it.
func (e *Engine) AnalyzePending(ctx context.Context) (int, error) {
	eventRepo := store.NewEventRepo(e.db)
	libRepo := store.NewLibraryRepo(e.db)
	vulnRepo := store.NewUpstreamVulnRepo(e.db)

	events, err := eventRepo.ListBugfixesWithoutAnalysis(ctx, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("analyzer: list unanalyzed bugfixes: %w", err)
	}

	var (
		mu        sync.Mutex
		processed int
		wg        sync.WaitGroup
	)
	for _, ev := range events {
		if err := e.sem.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func(ev *models.Event) {
			defer e.sem.Release()
			defer wg.Done()
			if err := e.analyzeOne(ctx, ev, libRepo, vulnRepo); err != nil {
				e.log.Error("analysis failed", "event_id", ev.ID, "error", err)
				return
			}
			mu.Lock()
			processed++
			mu.Unlock()
		}(ev)
	}
	wg.Wait()
	return processed, nil
}

// analyzeOne runs the placeholder/analyze/publish flow for a single event.
func (e *Engine) analyzeOne(ctx context.Context, ev *models.Event, libRepo *store.LibraryRepo, vulnRepo *store.UpstreamVulnRepo) error {
	lib, err := libRepo.GetByID(ctx, ev.LibraryID)
	if err != nil {
		return fmt.Errorf("load library: %w", err)
	}

	// Step 1: placeholder before the LLM is ever called, so the event is
	// never re-polled even if the analysis below fails.
	placeholder, err := vulnRepo.CreatePlaceholder(ctx, ev.ID, ev.LibraryID, ev.Ref)
	if err != nil {
		return fmt.Errorf("create placeholder: %w", err)
	}

	owner, repo, err := githubapi.OwnerRepo(lib.RepoURL)
	if err != nil {
		_ = vulnRepo.MarkErrored(ctx, placeholder.ID, err.Error())
		return err
	}

	spec := llmagent.Spec{
		AgentType:           models.AgentTypeVulnAnalyzer,
		EngineName:          "analyzer",
		SystemPrompt:        analyzerSystemPrompt,
		MaxTurns:            e.maxTurns,
		Temperature:         0,
		Model:               e.model,
		CompressionEnabled:  true,
		MaxContextTokens:    defaultMaxContextTokens,
		CompressionCriteria: "Preserve every vulnerability finding discussed so far verbatim.",
		Tools:               buildTools(e.gh, owner, repo),
		EarlyStop:           isWellFormedJSONValue,
		Parse:               parseFindings,
	}

	prompt := fmt.Sprintf("Analyze this fix commit for security vulnerabilities.\n\nCommit: %s\nTitle: %s\nMessage: %s",
		ev.Ref, ev.Title, messageOrEmpty(ev.Message))

	result, _, runErr := e.agent.Run(ctx, spec, prompt, "event", ev.ID)
	if runErr != nil {
		_ = vulnRepo.MarkErrored(ctx, placeholder.ID, runErr.Error())
		return runErr
	}

	findings, ok := result.([]finding)
	if !ok || len(findings) == 0 {
		err := fmt.Errorf("analyzer: no findings parsed from agent output")
		_ = vulnRepo.MarkErrored(ctx, placeholder.ID, err.Error())
		return err
	}

	// Step 3/4: first element fills the placeholder; the rest insert under
	// the same event as additional rows, each stamped published_at.
	if err := vulnRepo.PublishPlaceholder(ctx, placeholder.ID, toUpstreamVuln(ev, lib.ID, findings[0])); err != nil {
		_ = vulnRepo.MarkErrored(ctx, placeholder.ID, err.Error())
		return fmt.Errorf("publish placeholder: %w", err)
	}

	for _, f := range findings[1:] {
		v := toUpstreamVuln(ev, lib.ID, f)
		if _, err := vulnRepo.CreateAdditional(ctx, v); err != nil {
			return fmt.Errorf("create additional finding: %w", err)
		}
	}

	return nil
}

const defaultMaxContextTokens = 100000

func toUpstreamVuln(ev *models.Event, libraryID string, f finding) *models.UpstreamVuln {
	vulnType := normalizeVulnType(f.VulnType)
	severity := models.Severity(normalizeSeverity(f.Severity))
	return &models.UpstreamVuln{
		EventID:           ev.ID,
		LibraryID:         libraryID,
		CommitSHA:         ev.Ref,
		VulnType:          &vulnType,
		Severity:          &severity,
		AffectedVersions:  strPtrOrNil(f.AffectedVersions),
		Summary:           strPtrOrNil(f.Summary),
		Reasoning:         strPtrOrNil(f.Reasoning),
		UpstreamPoC:       f.UpstreamPoC,
		AffectedFunctions: f.AffectedFunctions,
	}
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func messageOrEmpty(m *string) string {
	if m == nil {
		return ""
	}
	return *m
}

const analyzerSystemPrompt = `You are a vulnerability analyst for a C/C++ upstream monitoring pipeline.
Given a fix commit already classified as a security bugfix, determine the
vulnerability it fixes. Use the available tools to inspect the commit diff
and any referenced file contents as needed.

Canonical vuln_type values: buffer_overflow, use_after_free, integer_overflow,
null_deref, injection, auth_bypass, info_leak, dos, race_condition,
memory_corruption, other.
Severity values: critical, high, medium, low.

A single commit may fix more than one vulnerability. Respond with either a
single JSON object or a JSON array of objects, each of the form:
{"vuln_type": "...", "severity": "...", "affected_versions": "...",
 "summary": "...", "reasoning": "...", "affected_functions": ["..."],
 "upstream_poc": {}}

Do not wrap the JSON in markdown fences. Do not emit any text outside the
JSON.`

func isWellFormedJSONValue(content string) bool {
	trimmed := strings.TrimSpace(content)
	var obj map[string]any
	if json.Unmarshal([]byte(trimmed), &obj) == nil {
		return true
	}
	var arr []json.RawMessage
	return json.Unmarshal([]byte(trimmed), &arr) == nil
}

// parseFindings normalizes the agent's final content — a single JSON object
// or a JSON array — into a list of findings.
func parseFindings(content string) (any, error) {
	trimmed := strings.TrimSpace(content)

	var arr []finding
	if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
		return arr, nil
	}

	var single finding
	if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
		return nil, fmt.Errorf("analyzer: parse result: %w", err)
	}
	return []finding{single}, nil
}
