// Package metrics exposes Prometheus collectors for the watch rule engine:
// evaluation counts, state transitions, dispatched actions, and evaluation
// latency, plus the HTTP handler that serves them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchrule_evaluations_total",
			Help: "Total number of rule evaluations, by outcome",
		},
		[]string{"status"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchrule_transitions_total",
			Help: "Total number of state transitions, by destination state",
		},
		[]string{"state"},
	)

	ActionsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchrule_actions_dispatched_total",
			Help: "Total number of action identifiers emitted on state transitions",
		},
		[]string{"state"},
	)

	EvaluationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchrule_evaluation_latency_seconds",
			Help:    "Time spent evaluating a single watch rule",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"status"},
	)

	ActiveRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchrule_active_rules",
			Help: "Number of watch rules currently scheduled for evaluation",
		},
	)

	QuarantinedRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchrule_quarantined_rules",
			Help: "Number of watch rules currently quarantined after a corrupt evaluation",
		},
	)
)

// ObserveEvaluation records one evaluation's outcome and latency.
func ObserveEvaluation(status string, took time.Duration) {
	EvaluationsTotal.WithLabelValues(status).Inc()
	EvaluationLatency.WithLabelValues(status).Observe(took.Seconds())
}

// ObserveTransition records a state transition and the action identifiers it
// dispatched.
func ObserveTransition(state string, actions []string) {
	TransitionsTotal.WithLabelValues(state).Inc()
	if len(actions) > 0 {
		ActionsDispatchedTotal.WithLabelValues(state).Add(float64(len(actions)))
	}
}

// Handler returns the HTTP handler that serves the registered collectors in
// the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
