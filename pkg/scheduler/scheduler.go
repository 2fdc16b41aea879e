// Package scheduler implements the stage scheduler: a directed chain of
// long-running workers, each polling its own cadence but able to wake its
// downstream neighbor the moment it makes progress. This is
// the structural backbone the pipeline stages (EventCollector,
// EventClassifier, VulnAnalyzer, ImpactMatcher, Reachability,
// Notification) plug into; no DependencyScanner stage is implemented here.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/owensanzas/vulnsentinel/pkg/metrics"
)

// WorkFunc performs one poll/claim/advance cycle and returns how many items
// it processed. A positive count fires the stage's downstream wake signal.
type WorkFunc func(ctx context.Context) (int, error)

// Stage is one named worker in the chain.
type Stage struct {
	Name         string
	Work         WorkFunc
	PollInterval time.Duration

	// downstream is fired when this stage processes at least one item.
	// Nil for the final stage.
	downstream *wakeSignal
	wake       *wakeSignal
}

// wakeSignal is a best-effort, coalescing trigger: firing it when it is
// already pending is a no-op, and receiving it clears it atomically.
type wakeSignal struct {
	ch chan struct{}
}

func newWakeSignal() *wakeSignal {
	return &wakeSignal{ch: make(chan struct{}, 1)}
}

func (w *wakeSignal) fire() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Scheduler owns the full stage chain and its lifecycle.
type Scheduler struct {
	stages []*Stage
	log    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler from stages in pipeline order (EventCollector
// first, Notification last). Each stage's downstream wake signal is wired
// to the next stage in the slice automatically; the last stage has none.
func New(log *slog.Logger, stages ...*Stage) *Scheduler {
	for i := range stages {
		stages[i].wake = newWakeSignal()
	}
	for i := 0; i < len(stages)-1; i++ {
		stages[i].downstream = stages[i+1].wake
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{stages: stages, log: log.With("component", "scheduler")}
}

// Start launches every stage's loop and fires the first stage's wake signal
// once so the pipeline begins promptly.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, stage := range s.stages {
		s.wg.Add(1)
		go s.runStage(runCtx, stage)
	}
	if len(s.stages) > 0 {
		s.stages[0].wake.fire()
	}
}

// Stop cancels every worker and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// runStage is one stage's wait/work/wake loop.
func (s *Scheduler) runStage(ctx context.Context, stage *Stage) {
	defer s.wg.Done()
	log := s.log.With("stage", stage.Name)

	timer := time.NewTimer(stage.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("stage shutting down")
			return
		case <-stage.wake.ch:
		case <-timer.C:
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		s.runCycle(ctx, stage, log)

		timer.Reset(stage.PollInterval)
	}
}

// runCycle runs stage.Work once inside a failure guard: a panic or error
// from the work function never kills the loop.
func (s *Scheduler) runCycle(ctx context.Context, stage *Stage, log *slog.Logger) {
	start := time.Now()
	var processed int
	var workErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("stage panicked", "panic", r)
			}
		}()
		processed, workErr = stage.Work(ctx)
	}()

	elapsed := time.Since(start)
	metrics.StageCycleDuration.WithLabelValues(stage.Name).Observe(elapsed.Seconds())
	if workErr != nil {
		metrics.StageCycleErrors.WithLabelValues(stage.Name).Inc()
		log.Error("stage cycle failed", "error", workErr, "elapsed", elapsed)
		return
	}

	metrics.StageItemsProcessed.WithLabelValues(stage.Name).Add(float64(processed))
	log.Info("stage cycle complete", "items_processed", processed, "elapsed", elapsed)

	if processed > 0 && stage.downstream != nil {
		stage.downstream.fire()
	}
}
