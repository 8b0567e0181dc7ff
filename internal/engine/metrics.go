package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_transitions_total",
			Help: "Status transitions attempted by the engine",
		},
		[]string{"to_status", "result"},
	)
	ForcedTransitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_forced_transitions_total",
			Help: "Transitions applied with validation bypassed",
		},
	)
	SagaStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_saga_steps_total",
			Help: "Saga step executions by outcome",
		},
		[]string{"step_type", "result"},
	)
	OutboxPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_outbox_published_total",
			Help: "Outbox events delivered",
		},
	)
	OutboxFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_outbox_failed_total",
			Help: "Outbox delivery attempts that failed",
		},
	)
	WebhookDuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_webhook_duplicates_total",
			Help: "Inbound webhooks short-circuited as duplicates",
		},
	)
	ProcessingSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_transaction_processing_seconds",
			Help:    "Wall time from processing start to terminal status",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"type", "result"},
	)
)

func init() {
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(ForcedTransitionsTotal)
	prometheus.MustRegister(SagaStepsTotal)
	prometheus.MustRegister(OutboxPublishedTotal)
	prometheus.MustRegister(OutboxFailedTotal)
	prometheus.MustRegister(WebhookDuplicatesTotal)
	prometheus.MustRegister(ProcessingSeconds)
}
