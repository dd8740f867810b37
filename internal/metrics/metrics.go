// -----------------------------------------------------------------------
// Metrics - prometheus instrumentation for the download scheduler
// -----------------------------------------------------------------------

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Download outcome labels
const (
	StatusFinished = "finished"
	StatusFailed   = "failed"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the scheduler's collectors on a private registry so several
// instances (tests, multiple apps in one process) never collide.
// All methods are safe on a nil receiver, which disables recording.
type Metrics struct {
	registry *prometheus.Registry

	downloadsTotal   *prometheus.CounterVec
	strategyAttempts *prometheus.CounterVec
	downloadDuration prometheus.Histogram
	fileSizeBytes    prometheus.Histogram
	inProgress       prometheus.Gauge
	pollErrors       prometheus.Counter
}

// New creates and registers the collectors. Every metric name is prefixed
// with namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Completed download jobs by outcome",
		},
		[]string{"status"},
	)

	m.strategyAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_attempts_total",
			Help:      "Download attempts per option strategy and result",
		},
		[]string{"strategy", "result"},
	)

	// Downloads run from seconds to hours
	m.downloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Wall time from start to finish or failure of a download",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// 1MB .. 16GB
	m.fileSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_size_bytes",
			Help:      "Size of placed files",
			Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 8),
		},
	)

	m.inProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_in_progress",
			Help:      "Downloads currently holding a slot",
		},
	)

	m.pollErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Scheduler cycles aborted by an infrastructure error",
		},
	)

	m.registry.MustRegister(
		m.downloadsTotal,
		m.strategyAttempts,
		m.downloadDuration,
		m.fileSizeBytes,
		m.inProgress,
		m.pollErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordOutcome counts a job reaching finished or failed and observes how long it ran
func (m *Metrics) RecordOutcome(status string, seconds float64) {
	if m == nil {
		return
	}
	m.downloadsTotal.WithLabelValues(status).Inc()
	if seconds > 0 {
		m.downloadDuration.Observe(seconds)
	}
}

// RecordAttempt counts one strategy attempt
func (m *Metrics) RecordAttempt(strategy string, success bool) {
	if m == nil {
		return
	}
	result := ResultFailure
	if success {
		result = ResultSuccess
	}
	m.strategyAttempts.WithLabelValues(strategy, result).Inc()
}

// RecordFileSize observes the size of a placed file
func (m *Metrics) RecordFileSize(bytes int64) {
	if m == nil {
		return
	}
	m.fileSizeBytes.Observe(float64(bytes))
}

// StartDownload and EndDownload bracket the time a job holds a download slot
func (m *Metrics) StartDownload() {
	if m == nil {
		return
	}
	m.inProgress.Inc()
}

func (m *Metrics) EndDownload() {
	if m == nil {
		return
	}
	m.inProgress.Dec()
}

// RecordPollError counts an aborted scheduler cycle
func (m *Metrics) RecordPollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}
