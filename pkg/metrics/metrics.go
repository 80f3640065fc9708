package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Graph API call latency in milliseconds.
	GraphCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graph_call_latency_ms",
			Help:    "Mail provider API call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"endpoint", "status"},
	)

	// Classifier call latency in milliseconds.
	ClassifierCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_call_latency_ms",
			Help:    "LLM classifier call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Per-entry webhook outcomes.
	WebhookNotificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_notification_count",
			Help: "Total number of webhook notification entries by outcome",
		},
		[]string{"outcome"}, // processed, duplicate, invalid_state, skipped, failed
	)

	EmailProcessedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_processed_count",
			Help: "Total number of emails processed",
		},
		[]string{"classification"},
	)

	SubscriptionRenewalCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_renewal_count",
			Help: "Total number of subscription renewal attempts",
		},
		[]string{"result"}, // created, renewed, noop, failed
	)
)

// RecordGraphCallLatency records a mail provider call.
func RecordGraphCallLatency(endpoint, status string, duration time.Duration) {
	GraphCallLatency.WithLabelValues(endpoint, status).Observe(float64(duration.Milliseconds()))
}

// RecordClassifierCallLatency records an LLM call.
func RecordClassifierCallLatency(status string, duration time.Duration) {
	ClassifierCallLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration records a database query.
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration records an HTTP request.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementWebhookNotification counts one notification entry outcome.
func IncrementWebhookNotification(outcome string) {
	WebhookNotificationCount.WithLabelValues(outcome).Inc()
}

// IncrementEmailProcessed counts one stored email.
func IncrementEmailProcessed(classification string) {
	EmailProcessedCount.WithLabelValues(classification).Inc()
}

// IncrementSubscriptionRenewal counts one renewal attempt result.
func IncrementSubscriptionRenewal(result string) {
	SubscriptionRenewalCount.WithLabelValues(result).Inc()
}
