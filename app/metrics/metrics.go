// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts Stripe webhook requests by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "captify",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "captify",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// ReconciliationsTotal counts reconciliation outcomes (applied, duplicate, ignored, failed).
	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "captify",
		Subsystem: "billing",
		Name:      "reconciliations_total",
		Help:      "Checkout reconciliation outcomes.",
	}, []string{"outcome"})

	// PointsGrantedTotal sums points granted by plan.
	PointsGrantedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "captify",
		Subsystem: "billing",
		Name:      "points_granted_total",
		Help:      "Points granted through reconciled payments, by plan.",
	}, []string{"plan"})

	// GenerationsTotal counts generation requests by content type and outcome.
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "captify",
		Subsystem: "generate",
		Name:      "requests_total",
		Help:      "Content generation requests by content type and outcome.",
	}, []string{"content_type", "outcome"})

	// GenerationDuration tracks model latency.
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "captify",
		Subsystem: "generate",
		Name:      "model_duration_seconds",
		Help:      "Latency of the upstream model call in seconds.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
	}, []string{"content_type"})
)
