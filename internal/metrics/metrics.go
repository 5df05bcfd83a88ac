// Package metrics provides Prometheus metrics for the GOES fetcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the GOES fetcher.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Workplan metrics
	ListCalls       *prometheus.CounterVec
	FilesListed     *prometheus.CounterVec
	WorkplanEntries *prometheus.GaugeVec

	// Transfer metrics
	FilesDownloaded *prometheus.CounterVec
	BytesDownloaded *prometheus.CounterVec
	FilesSkipped    *prometheus.CounterVec

	// Processing metrics
	FilesProcessed    *prometheus.CounterVec
	TransformDuration *prometheus.HistogramVec
	CohortsCompleted  *prometheus.CounterVec

	// Error metrics
	SourceErrors *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the global metrics on the default registerer.
// Call this once at startup.
func Init(namespace string) *Metrics {
	defaultMetrics = New(prometheus.DefaultRegisterer, namespace)
	return defaultMetrics
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// New registers a fresh metric set on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "goes_fetcher"
	}
	factory := promauto.With(reg)
	labels := []string{"satellite", "product"}

	return &Metrics{
		ListCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "list_calls_total",
				Help:      "Total number of remote hour-bucket listings",
			},
			labels,
		),
		FilesListed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_listed_total",
				Help:      "Total number of remote keys returned by listings",
			},
			labels,
		),
		WorkplanEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workplan_entries",
				Help:      "Number of entries in the current workplan",
			},
			labels,
		),
		FilesDownloaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_downloaded_total",
				Help:      "Total number of files fetched from the remote store",
			},
			labels,
		),
		BytesDownloaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_downloaded_total",
				Help:      "Total bytes written to the staging directory",
			},
			labels,
		),
		FilesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_skipped_total",
				Help:      "Total number of files skipped because they already exist locally",
			},
			append(labels, "reason"),
		),
		FilesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_processed_total",
				Help:      "Total number of entries handled by the process executors, by outcome",
			},
			append(labels, "status"),
		),
		TransformDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transform_duration_seconds",
				Help:      "Time spent in the transform of one file",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			labels,
		),
		CohortsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cohorts_completed_total",
				Help:      "Total number of parallel cohorts joined",
			},
			labels,
		),
		SourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Total number of remote store errors",
			},
			append(labels, "operation"),
		),
	}
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// Labels identifies the product a metric belongs to.
type Labels struct {
	Satellite string
	Product   string
}

func (l Labels) values(extra ...string) []string {
	return append([]string{l.Satellite, l.Product}, extra...)
}

// ObserveListing records one hour-bucket listing and the keys it returned.
func (m *Metrics) ObserveListing(l Labels, keys int) {
	if m == nil {
		return
	}
	m.ListCalls.WithLabelValues(l.values()...).Inc()
	m.FilesListed.WithLabelValues(l.values()...).Add(float64(keys))
}

// SetWorkplanEntries sets the current workplan size.
func (m *Metrics) SetWorkplanEntries(l Labels, n int) {
	if m == nil {
		return
	}
	m.WorkplanEntries.WithLabelValues(l.values()...).Set(float64(n))
}

// ObserveDownload records one completed fetch.
func (m *Metrics) ObserveDownload(l Labels, bytes int64) {
	if m == nil {
		return
	}
	m.FilesDownloaded.WithLabelValues(l.values()...).Inc()
	if bytes > 0 {
		m.BytesDownloaded.WithLabelValues(l.values()...).Add(float64(bytes))
	}
}

// IncSkipped increments the skipped counter for reason.
func (m *Metrics) IncSkipped(l Labels, reason string) {
	if m == nil {
		return
	}
	m.FilesSkipped.WithLabelValues(l.values(reason)...).Inc()
}

// IncProcessed increments the processed counter for status.
func (m *Metrics) IncProcessed(l Labels, status string) {
	if m == nil {
		return
	}
	m.FilesProcessed.WithLabelValues(l.values(status)...).Inc()
}

// ObserveTransformDuration records the time spent in one transform.
func (m *Metrics) ObserveTransformDuration(l Labels, seconds float64) {
	if m == nil {
		return
	}
	m.TransformDuration.WithLabelValues(l.values()...).Observe(seconds)
}

// IncCohortsCompleted increments the cohort counter.
func (m *Metrics) IncCohortsCompleted(l Labels) {
	if m == nil {
		return
	}
	m.CohortsCompleted.WithLabelValues(l.values()...).Inc()
}

// IncSourceErrors increments the remote error counter for operation.
func (m *Metrics) IncSourceErrors(l Labels, operation string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(l.values(operation)...).Inc()
}
