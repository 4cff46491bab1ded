package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cabinet_bootstrap"

var (
	// StrategyAttempts counts fallback strategy runs by component, strategy and result.
	StrategyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strategy",
		Name:      "attempts_total",
		Help:      "Total number of bootstrap strategy attempts.",
	}, []string{"component", "strategy", "result"}) // result: success, failure, skipped

	// ReconcileOutcomes counts reconcile calls by entry point and outcome.
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "outcomes_total",
		Help:      "Total number of reconcile calls by outcome.",
	}, []string{"entry_point", "outcome"})

	// ReconcileDuration observes reconcile latency.
	ReconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "duration_seconds",
		Help:      "Duration of reconcile calls in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"entry_point"})

	// ClassifiedErrors counts classified backend failures.
	ClassifiedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "failure",
		Name:      "classified_total",
		Help:      "Total number of classified backend failures by source and kind.",
	}, []string{"source", "kind"})

	// Notifications counts user notification decisions of the error monitor.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "notifications_total",
		Help:      "Total number of error notifications shown or suppressed.",
	}, []string{"decision"})

	// HTTPRequests counts HTTP requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes HTTP request latency.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)
