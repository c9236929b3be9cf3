// Package metrics provides Prometheus metrics for the radar scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by job and link-check series.
const (
	OutcomeOK     = "ok"
	OutcomeBroken = "broken"
	OutcomeError  = "error"
	OutcomeSkip   = "skipped"
)

// Manager manages all Prometheus metrics for the radar service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Ingestion
	ingestItems      prometheus.Counter
	ingestDuplicates prometheus.Counter
	ingestFailures   prometheus.Counter
	ingestUnresolved prometheus.Counter
	signalsByType    *prometheus.CounterVec

	// Aggregation
	aggregationRuns      prometheus.Counter
	aggregationErrors    prometheus.Counter
	aggregationDuration  prometheus.Histogram
	aggregationCompanies prometheus.Gauge
	aggregationLastUnix  prometheus.Gauge

	// Feedback
	feedbackSubmissions *prometheus.CounterVec

	// Link checking
	linkChecks        *prometheus.CounterVec
	linkCheckDuration prometheus.Histogram

	// Scheduler
	jobRuns *prometheus.CounterVec

	// Store
	storeQueryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "radar",
		subsystem:        "core",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.ingestItems = m.counter("ingest_items_total", "Total number of raw items written to the signal store")
	m.ingestDuplicates = m.counter("ingest_duplicates_total", "Total number of exact duplicate items skipped inside a batch")
	m.ingestFailures = m.counter("ingest_failures_total", "Total number of items that failed to ingest")
	m.ingestUnresolved = m.counter("ingest_unresolved_total", "Total number of items without an extractable registration number")
	m.signalsByType = m.counterVec("signals_classified_total", "Signals classified by type", "type")

	m.aggregationRuns = m.counter("aggregation_runs_total", "Total number of daily aggregation runs")
	m.aggregationErrors = m.counter("aggregation_errors_total", "Total number of failed daily aggregation runs")
	m.aggregationDuration = m.histogram("aggregation_duration_milliseconds", "Daily aggregation run duration in milliseconds")
	m.aggregationCompanies = m.gauge("aggregation_companies_scored", "Companies scored by the last aggregation run")
	m.aggregationLastUnix = m.gauge("aggregation_last_run_unix", "Unix timestamp of the last successful aggregation run")

	m.feedbackSubmissions = m.counterVec("feedback_submissions_total", "Feedback submissions by label and author kind", "label", "author")

	m.linkChecks = m.counterVec("link_checks_total", "Link checks by outcome", "outcome")
	m.linkCheckDuration = m.histogram("link_check_duration_milliseconds", "Per-URL link check duration in milliseconds")

	m.jobRuns = m.counterVec("scheduler_job_runs_total", "Scheduled job runs by job and outcome", "job", "outcome")

	m.storeQueryLatency = m.histogramVec("store_query_latency_milliseconds", "Store operation latency in milliseconds", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordIngestItem increments the ingested items counter.
func RecordIngestItem() {
	globalManager.ingestItems.Inc()
}

// RecordIngestDuplicate increments the in-batch duplicate counter.
func RecordIngestDuplicate() {
	globalManager.ingestDuplicates.Inc()
}

// RecordIngestFailure increments the ingest failure counter.
func RecordIngestFailure() {
	globalManager.ingestFailures.Inc()
}

// RecordIngestUnresolved increments the unresolved company counter.
func RecordIngestUnresolved() {
	globalManager.ingestUnresolved.Inc()
}

// RecordSignalClassified counts a classification result by signal type.
func RecordSignalClassified(signalType string) {
	globalManager.signalsByType.WithLabelValues(signalType).Inc()
}

// RecordAggregationRun records a successful aggregation run.
func RecordAggregationRun(durationMs float64, companies int, finishedUnix int64) {
	globalManager.aggregationRuns.Inc()
	globalManager.aggregationDuration.Observe(durationMs)
	globalManager.aggregationCompanies.Set(float64(companies))
	globalManager.aggregationLastUnix.Set(float64(finishedUnix))
}

// RecordAggregationError records a failed aggregation run.
func RecordAggregationError() {
	globalManager.aggregationErrors.Inc()
}

// RecordFeedback records a feedback submission.
func RecordFeedback(label, author string) {
	globalManager.feedbackSubmissions.WithLabelValues(label, author).Inc()
}

// RecordLinkCheck records one link check outcome and its duration.
func RecordLinkCheck(outcome string, durationMs float64) {
	globalManager.linkChecks.WithLabelValues(outcome).Inc()
	globalManager.linkCheckDuration.Observe(durationMs)
}

// RecordJobRun records a scheduler job run.
func RecordJobRun(job, outcome string) {
	globalManager.jobRuns.WithLabelValues(job, outcome).Inc()
}

// RecordStoreLatency records the latency of a store operation.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
