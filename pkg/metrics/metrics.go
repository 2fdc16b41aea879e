// Package metrics declares the ambient Prometheus collectors every
// scheduler stage and agent run reports to, all exposed together at the
// process's /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StageCycleDuration observes how long one scheduler stage cycle took.
	StageCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vulnsentinel",
		Subsystem: "scheduler",
		Name:      "stage_cycle_duration_seconds",
		Help:      "Duration of one stage work cycle.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	// StageItemsProcessed counts items a stage cycle processed.
	StageItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vulnsentinel",
		Subsystem: "scheduler",
		Name:      "stage_items_processed_total",
		Help:      "Items processed per stage cycle, cumulative.",
	}, []string{"stage"})

	// StageCycleErrors counts failed stage cycles.
	StageCycleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vulnsentinel",
		Subsystem: "scheduler",
		Name:      "stage_cycle_errors_total",
		Help:      "Stage cycles that returned an error.",
	}, []string{"stage"})

	// AgentRunTokens counts input/output tokens consumed by LLM agent runs.
	AgentRunTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vulnsentinel",
		Subsystem: "llmagent",
		Name:      "tokens_total",
		Help:      "Tokens consumed by agent runs, by agent type and direction.",
	}, []string{"agent_type", "direction"})

	// AgentRunCostUSD sums estimated USD cost of agent runs.
	AgentRunCostUSD = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vulnsentinel",
		Subsystem: "llmagent",
		Name:      "estimated_cost_usd_total",
		Help:      "Estimated USD cost of agent runs, by agent type.",
	}, []string{"agent_type"})

	// AgentRunDuration observes agent-run wall-clock duration.
	AgentRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vulnsentinel",
		Subsystem: "llmagent",
		Name:      "run_duration_seconds",
		Help:      "Duration of one agent run, by agent type and terminal status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"agent_type", "status"})
)

// Handler serves the registered collectors for a gin (or any net/http)
// mux to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
