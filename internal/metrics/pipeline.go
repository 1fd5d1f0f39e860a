package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion pipeline Prometheus metrics.
var (
	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dockeep",
			Name:      "ingest_files_total",
			Help:      "Files handed to the ingestion pipeline by outcome",
		},
		[]string{"outcome"}, // "processed" / "duplicate" / "rejected" / "failed"
	)

	StageRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dockeep",
			Name:      "pipeline_stage_runs_total",
			Help:      "Pipeline stage executions by final status",
		},
		[]string{"stage", "status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dockeep",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers ingestion metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestTotal)
	prometheus.MustRegister(StageRunsTotal)
	prometheus.MustRegister(StageDuration)
	pipelineMetricsRegistered = true
}
