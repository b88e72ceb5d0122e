// Package telemetry exposes Prometheus metrics for the agent core. The host
// adapter serves them at /metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTurnsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "turns_started_total",
		Help:      "Number of agent turns started.",
	})
	metricTurnsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "turns_completed_total",
		Help:      "Number of agent turns reaching a terminal state, by outcome.",
	}, []string{"outcome"})
	metricTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tally",
		Name:      "turn_duration_seconds",
		Help:      "Wall-clock duration of completed turns.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	metricToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "tool_executions_total",
		Help:      "Number of tool executions, by tool and status.",
	}, []string{"tool", "status"})
	metricToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tally",
		Name:      "tool_duration_seconds",
		Help:      "Duration of tool executions.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"tool"})
	metricConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "confirmations_total",
		Help:      "Number of confirmation requests resolved, by resolution.",
	}, []string{"resolution"})
	metricModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tally",
		Name:      "model_calls_total",
		Help:      "Number of language model calls, by purpose and status.",
	}, []string{"purpose", "status"})
)

// RecordTurnStarted counts a new turn.
func RecordTurnStarted() {
	metricTurnsStarted.Inc()
}

// RecordTurnCompleted counts a terminal turn with its outcome label
// ("completed", "aborted", "error", "clarify").
func RecordTurnCompleted(outcome string, duration time.Duration) {
	metricTurnsCompleted.WithLabelValues(outcome).Inc()
	metricTurnDuration.Observe(duration.Seconds())
}

// RecordToolExecution counts one tool execution.
func RecordToolExecution(tool, status string, duration time.Duration) {
	metricToolExecutions.WithLabelValues(tool, status).Inc()
	metricToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordConfirmation counts a resolved confirmation
// ("approve", "reject", "always_allow", "timeout").
func RecordConfirmation(resolution string) {
	metricConfirmations.WithLabelValues(resolution).Inc()
}

// RecordModelCall counts one language model call
// (purpose "intent" or "reflection", status "ok" or "error").
func RecordModelCall(purpose, status string) {
	metricModelCalls.WithLabelValues(purpose, status).Inc()
}
