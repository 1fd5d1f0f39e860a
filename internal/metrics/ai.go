package metrics

import "github.com/prometheus/client_golang/prometheus"

// AI provider Prometheus metrics.
var (
	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dockeep",
			Name:      "ai_requests_total",
			Help:      "AI provider calls by operation and status",
		},
		[]string{"op", "status"}, // status "ok" / "error"
	)

	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dockeep",
			Name:      "ai_request_duration_seconds",
			Help:      "AI provider call duration in seconds, retries included",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"op"},
	)

	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dockeep",
			Name:      "ai_tokens_total",
			Help:      "Tokens consumed by AI calls",
		},
		[]string{"op"},
	)
)

var aiMetricsRegistered bool

// RegisterAIMetrics registers AI provider metrics. Must be called once from main.
func RegisterAIMetrics() {
	if aiMetricsRegistered {
		return
	}
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AITokensTotal)
	aiMetricsRegistered = true
}
