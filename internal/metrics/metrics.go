// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline: per-stage outcomes and latencies plus terminal counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	StageTotal    *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	InFlight      prometheus.Gauge
	Completed     prometheus.Counter
	DeadLettered  *prometheus.CounterVec
}

// New registers the pipeline collectors on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "stage_total",
			Help:      "Pipeline stage executions by stage and result.",
		}, []string{"stage", "result"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ingestor",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ingestor",
			Name:      "documents_in_flight",
			Help:      "Documents currently being processed.",
		}),
		Completed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "documents_completed_total",
			Help:      "Documents that reached the Completed state.",
		}),
		DeadLettered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "documents_dead_lettered_total",
			Help:      "Documents routed to the dead-letter queue by reason.",
		}, []string{"reason"}),
	}
}
