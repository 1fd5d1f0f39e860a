package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval engine Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dockeep",
			Name:      "searches_total",
			Help:      "Search requests by the strategy that served them",
		},
		[]string{"strategy"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dockeep",
			Name:      "search_duration_seconds",
			Help:      "Search request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 45},
		},
		[]string{"strategy"},
	)

	BreakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dockeep",
			Name:      "ai_breaker_open",
			Help:      "1 while the AI circuit breaker is tripped, 0 otherwise",
		},
	)

	RAGAnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dockeep",
			Name:      "rag_answers_total",
			Help:      "Question answering requests by outcome",
		},
		[]string{"outcome"}, // "answered" / "no_provider" / "no_documents" / "no_text" / "circuit_open" / "failed"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers retrieval engine metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(BreakerOpen)
	prometheus.MustRegister(RAGAnswersTotal)
	searchMetricsRegistered = true
}
