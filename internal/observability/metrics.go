package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a run. Each Metrics owns its
// registry so runs and tests do not share state.
type Metrics struct {
	registry   *prometheus.Registry
	iterations *prometheus.HistogramVec
	failures   *prometheus.CounterVec
	warmups    *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		iterations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enginebench_iteration_duration_seconds",
				Help:    "Latency of measured benchmark iterations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 20),
			},
			[]string{"case"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enginebench_case_failures_total",
				Help: "Total number of benchmark cases stopped by an engine error",
			},
			[]string{"case"},
		),
		warmups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enginebench_warmup_iterations_total",
				Help: "Total number of uninstrumented warmup iterations",
			},
			[]string{"case"},
		),
	}
}

// ObserveIteration records a measured iteration.
func (m *Metrics) ObserveIteration(name string, d time.Duration) {
	m.iterations.WithLabelValues(name).Observe(d.Seconds())
}

// IncWarmup counts a warmup iteration.
func (m *Metrics) IncWarmup(name string) {
	m.warmups.WithLabelValues(name).Inc()
}

// IncFailure counts a failed case.
func (m *Metrics) IncFailure(name string) {
	m.failures.WithLabelValues(name).Inc()
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current metrics in the text exposition format,
// as consumed by the node exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
