package metrics

import (
	"errors"
	"net/http"

	"querybench/internal/benchmark"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
	OutcomeTimeout    = "timeout"
	OutcomeUnparsable = "unparsable"
)

// Metrics represents the collection of all Prometheus metrics of a benchmark
// process. It owns its registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	RunMemoryDelta  *prometheus.HistogramVec
	SessionsTotal   *prometheus.CounterVec
	SessionFailures *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	labels := []string{"tool", "function", "mode"}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybench_runs_total",
			Help: "Total number of measured runs by outcome",
		},
		append(labels, "outcome"),
	)

	m.RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybench_run_duration_seconds",
			Help:    "Wall-clock time of successful runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 20),
		},
		labels,
	)

	m.RunMemoryDelta = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybench_run_memory_delta_megabytes",
			Help:    "Resident memory delta of successful runs in MB",
			Buckets: []float64{-64, -16, -4, -1, 0, 1, 4, 16, 64, 256, 1024, 4096},
		},
		labels,
	)

	m.SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybench_sessions_total",
			Help: "Total number of finished benchmark sessions",
		},
		labels,
	)

	m.SessionFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "querybench_session_failed_runs",
			Help: "Failed runs of the latest session",
		},
		labels,
	)

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunMemoryDelta,
		m.SessionsTotal,
		m.SessionFailures,
	)
	return m
}

// RunCompleted implements benchmark.Observer.
func (m *Metrics) RunCompleted(spec benchmark.Spec, rec benchmark.Record) {
	m.RunsTotal.WithLabelValues(spec.Tool, spec.Function, string(spec.Mode), OutcomeOK).Inc()
	m.RunDuration.WithLabelValues(spec.Tool, spec.Function, string(spec.Mode)).Observe(rec.TimeS)
	m.RunMemoryDelta.WithLabelValues(spec.Tool, spec.Function, string(spec.Mode)).Observe(rec.MemoryMB)
}

// RunFailed implements benchmark.Observer.
func (m *Metrics) RunFailed(spec benchmark.Spec, run int, err error) {
	m.RunsTotal.WithLabelValues(spec.Tool, spec.Function, string(spec.Mode), Outcome(err)).Inc()
}

// SessionFinished records a finalized session.
func (m *Metrics) SessionFinished(s *benchmark.Session) {
	m.SessionsTotal.WithLabelValues(s.Tool, s.Function, string(s.Mode)).Inc()
	m.SessionFailures.WithLabelValues(s.Tool, s.Function, string(s.Mode)).Set(float64(s.Failures))
}

// Outcome classifies a run error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, benchmark.ErrRunTimeout):
		return OutcomeTimeout
	case errors.Is(err, benchmark.ErrUnparsableOutput):
		return OutcomeUnparsable
	default:
		return OutcomeFailed
	}
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current values in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

