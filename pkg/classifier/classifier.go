// Package classifier implements the EventClassifier stage: a deterministic
// pre-filter for obviously-safe events, falling back to an LLM agent for
// everything that might carry a security signal.
package classifier

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

// canonicalLabels is the five-label set the classifier ever stores.
var canonicalLabels = map[string]models.EventClassification{
	"security_bugfix": models.ClassificationSecurityBugfix,
	"normal_bugfix":   models.ClassificationNormalBugfix,
	"refactor":        models.ClassificationRefactor,
	"feature":         models.ClassificationFeature,
	"other":           models.ClassificationOther,
}

// labelAliases maps extended labels the model sometimes emits onto the
// canonical five.
var labelAliases = map[string]models.EventClassification{
	"vulnerability_fix": models.ClassificationSecurityBugfix,
	"cve_fix":           models.ClassificationSecurityBugfix,
	"security_fix":      models.ClassificationSecurityBugfix,
	"hardening":         models.ClassificationSecurityBugfix,
	"bug_fix":           models.ClassificationNormalBugfix,
	"bugfix":            models.ClassificationNormalBugfix,
	"patch":             models.ClassificationNormalBugfix,
	"enhancement":       models.ClassificationFeature,
	"new_feature":       models.ClassificationFeature,
	"cleanup":           models.ClassificationRefactor,
	"restructure":       models.ClassificationRefactor,
	"chore":             models.ClassificationOther,
	"maintenance":       models.ClassificationOther,
	"documentation":     models.ClassificationOther,
}

func mapLabel(raw string) models.EventClassification {
	key := strings.ToLower(strings.TrimSpace(raw))
	if c, ok := canonicalLabels[key]; ok {
		return c
	}
	if c, ok := labelAliases[key]; ok {
		return c
	}
	return models.ClassificationOther
}

// classifyResult is the LLM path's required JSON shape.
type classifyResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Engine runs one EventClassifier cycle.
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
	MaxTurns    int // defaults to 8, shallower than the vuln analyzer's 15
	Model       string
	Concurrency int // max events classified in parallel per cycle
}

// New builds a classifier Engine.
func New(db *sql.DB, gh *githubapi.Client, agent *llmagent.Controller, cfg Config, log *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 8
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: db, gh: gh, agent: agent, sem: scheduler.NewSemaphore(cfg.Concurrency),
		log: log.With("component", "classifier"),
		batchSize: cfg.BatchSize, maxTurns: cfg.MaxTurns, model: cfg.Model}
}

// ClassifyPending is the stage's scheduler.WorkFunc. Most events resolve
// in the pre-filter without I/O; the ones that reach the LLM path run with
// bounded concurrency.
func (e *Engine) ClassifyPending(ctx context.Context) (int, error) {
	eventRepo := store.NewEventRepo(e.db)
	libRepo := store.NewLibraryRepo(e.db)

	events, err := eventRepo.ListUnclassified(ctx, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("classifier: list unclassified: %w", err)
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
			classification, confidence, err := e.classifyOne(ctx, ev, libRepo)
			if err != nil {
				e.log.Error("classification failed, leaving for retry", "event_id", ev.ID, "error", err)
				return
			}
			if err := eventRepo.UpdateClassification(ctx, ev.ID, classification, confidence); err != nil {
				e.log.Error("failed to persist classification", "event_id", ev.ID, "error", err)
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

func (e *Engine) classifyOne(ctx context.Context, ev *models.Event, libRepo *store.LibraryRepo) (models.EventClassification, float64, error) {
	if pf := prefilter(ev); pf.hit {
		return pf.classification, pf.confidence, nil
	}

	lib, err := libRepo.GetByID(ctx, ev.LibraryID)
	if err != nil {
		return "", 0, fmt.Errorf("load library: %w", err)
	}
	owner, repo, err := githubapi.OwnerRepo(lib.RepoURL)
	if err != nil {
		return "", 0, err
	}

	spec := llmagent.Spec{
		AgentType:    models.AgentTypeEventClassifier,
		EngineName:   "classifier",
		SystemPrompt: classifierSystemPrompt,
		MaxTurns:     e.maxTurns,
		Temperature:  0,
		Model:        e.model,
		Tools:        buildTools(e.gh, owner, repo),
		EarlyStop:    isWellFormedJSONObject,
		Parse:        parseClassifyResult,
	}

	prompt := fmt.Sprintf("Classify this event.\n\nType: %s\nRef: %s\nTitle: %s\nMessage: %s",
		ev.Type, ev.Ref, ev.Title, messageOrEmpty(ev.Message))

	result, _, err := e.agent.Run(ctx, spec, prompt, "event", ev.ID)
	if err != nil {
		return "", 0, err
	}

	parsed, ok := result.(classifyResult)
	if !ok {
		// The run exhausted its turns or returned unparseable content.
		// Store a low-confidence "other" instead of erroring, so the event
		// is not re-polled into the LLM forever.
		e.log.Warn("agent output unparseable, falling back to other", "event_id", ev.ID)
		return models.ClassificationOther, 0.3, nil
	}
	return mapLabel(parsed.Label), clampConfidence(parsed.Confidence), nil
}

const classifierSystemPrompt = `You are a security-focused triage assistant for a C/C++ upstream monitoring
pipeline. Given a single commit, merged pull request, or bug issue, decide
whether it fixes a security vulnerability.

Use the available tools to inspect the commit diff, PR diff, referenced
file contents, or issue/PR body as needed before deciding.

Respond with exactly one JSON object of the form:
{"label": "security_bugfix|normal_bugfix|refactor|feature|other", "confidence": 0.0-1.0, "reasoning": "..."}

Do not wrap the JSON in markdown fences. Do not emit any text outside the
JSON object.`

func isWellFormedJSONObject(content string) bool {
	var v map[string]any
	return json.Unmarshal([]byte(strings.TrimSpace(content)), &v) == nil
}

func parseClassifyResult(content string) (any, error) {
	var r classifyResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &r); err != nil {
		return nil, fmt.Errorf("classifier: parse result: %w", err)
	}
	if r.Label == "" {
		return nil, fmt.Errorf("classifier: result missing label")
	}
	return r, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func messageOrEmpty(m *string) string {
	if m == nil {
		return ""
	}
	return *m
}
