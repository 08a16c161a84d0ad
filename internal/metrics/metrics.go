// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "simclinic"

var (
	// UpstreamDuration measures calls to the oracle and memory services.
	// Labels: service (oracle, memory), operation, outcome (ok, error, timeout, not_found)
	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Latency of calls to external services",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"service", "operation", "outcome"})

	// SessionTransitions counts state machine transitions by target status.
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session status transitions",
	}, []string{"to"})

	// VersionConflicts counts optimistic update retries.
	// Labels: resource (session, stage_progress)
	VersionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "version_conflicts_total",
		Help:      "Optimistic concurrency conflicts that forced a reload",
	}, []string{"resource"})

	// AssessmentsGenerated counts generation outcomes.
	// Labels: outcome (created, existing, upstream_unavailable, validation_error, error)
	AssessmentsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "assessment",
		Name:      "generated_total",
		Help:      "Assessment generation attempts by outcome",
	}, []string{"outcome"})

	// EffectOutcomes counts post-assessment effects.
	// Labels: effect (ledger, memory, stage), outcome (ok, error)
	EffectOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "assessment",
		Name:      "effects_total",
		Help:      "Post-assessment effect outcomes",
	}, []string{"effect", "outcome"})

	// QueueDepth tracks jobs waiting in the assessment worker pool.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "queue_depth",
		Help:      "Jobs waiting for an assessment worker",
	})
)
