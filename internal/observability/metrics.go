package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "synop_bufr"

// Metrics holds the Prometheus counters, histograms, and gauges for a run.
type Metrics struct {
	RunInProgress prometheus.Gauge
	RunsTotal     *prometheus.CounterVec // labels: state={finished,aborted}
	RunDuration   prometheus.Histogram
	LastSuccess   prometheus.Gauge

	// Readiness polling.
	PollAttempts prometheus.Counter
	StagedFiles  prometheus.Gauge

	// Per-slot processing.
	Slots           *prometheus.CounterVec // labels: outcome={no_data,empty_output,converted,archived,skipped}
	DroppedReports  prometheus.Counter
	EncoderDuration prometheus.Histogram
	EncoderFailures prometheus.Counter

	// Archiving.
	ArtifactsArchived prometheus.Counter
	ArchivedBytes     prometheus.Counter

	registry *prometheus.Registry
}

func newMetrics() *Metrics {
	return &Metrics{
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a run is active, 0 otherwise.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by terminal state.",
		}, []string{"state"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a run, including readiness polling.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished.",
		}),
		PollAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_attempts_total",
			Help:      "Readiness poll attempts.",
		}),
		StagedFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staged_files",
			Help:      "Raw files staged by the last successful poll attempt.",
		}),
		Slots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_total",
			Help:      "Slots processed by outcome.",
		}, []string{"outcome"}),
		DroppedReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_reports_dropped_total",
			Help:      "Placeholder missing-report lines removed before conversion.",
		}),
		EncoderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encoder_duration_seconds",
			Help:      "Duration of a single encoder invocation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EncoderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoder_failures_total",
			Help:      "Encoder invocations that exited with a non-zero status.",
		}),
		ArtifactsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_archived_total",
			Help:      "BUFR artifacts moved into the archive.",
		}),
		ArchivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_bytes_total",
			Help:      "Bytes of BUFR artifacts moved into the archive.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunInProgress,
		m.RunsTotal,
		m.RunDuration,
		m.LastSuccess,
		m.PollAttempts,
		m.StagedFiles,
		m.Slots,
		m.DroppedReports,
		m.EncoderDuration,
		m.EncoderFailures,
		m.ArtifactsArchived,
		m.ArchivedBytes,
	}
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m.collectors()...)
	return m
}

// Gatherer returns the registry holding these metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultGatherer
}

// Push sends the current metric values to a Prometheus Pushgateway under job.
// A run is too short-lived to be scraped reliably, so the final values are
// pushed once it ends.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(m.Gatherer()).PushContext(ctx)
}
