package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the Prometheus collectors of the SPC service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Computation metrics
	computations       *prometheus.CounterVec
	computationLatency *prometheus.HistogramVec
	computationErrors  *prometheus.CounterVec
	outOfControl       *prometheus.CounterVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Ingest metrics
	measurementsAccepted  prometheus.Counter
	measurementsDuplicate prometheus.Counter

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Repository metrics
	repositoryShardCount    prometheus.Gauge
	repositoryColumns       prometheus.Gauge
	repositoryPoints        prometheus.Gauge
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "spc",
		subsystem:        "engine",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
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
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.computations = m.counterVec("computations_total",
		"Total number of engine computations by kind", "kind")
	m.computationLatency = m.histogramVec("computation_latency_milliseconds",
		"Engine computation latency in milliseconds", "kind")
	m.computationErrors = m.counterVec("computation_errors_total",
		"Total number of failed engine computations by kind", "kind")
	m.outOfControl = m.counterVec("out_of_control_total",
		"Total number of newest points flagged by a control rule, by column", "column")

	m.cacheHits = m.counterVec("cache_hits_total", "Result cache hits by layer", "layer")
	m.cacheMisses = m.counterVec("cache_misses_total", "Result cache misses by layer", "layer")

	m.measurementsAccepted = m.counter("measurements_accepted_total",
		"Total number of measurements accepted for ingestion")
	m.measurementsDuplicate = m.counter("measurements_duplicate_total",
		"Total number of duplicate measurements rejected")

	m.queueSize = m.gauge("queue_size", "Current size of the measurement queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of measurements enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of measurements dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of workers currently processing")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Total number of worker errors")

	m.repositoryShardCount = m.gauge("repository_shard_count", "Total number of repository shards")
	m.repositoryColumns = m.gauge("repository_columns", "Number of columns held by the repository")
	m.repositoryPoints = m.gauge("repository_points", "Number of points held across all columns")
	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds",
		"Repository update operation latency in milliseconds")
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds",
		"Repository query operation latency in milliseconds")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
}

// RecordComputation counts one computation of kind and its latency.
func RecordComputation(kind string, latencyMs float64) {
	globalManager.computations.WithLabelValues(kind).Inc()
	globalManager.computationLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordComputationError counts a failed computation of kind.
func RecordComputationError(kind string) {
	globalManager.computationErrors.WithLabelValues(kind).Inc()
}

// RecordOutOfControl counts an alarm raised for column.
func RecordOutOfControl(column string) {
	globalManager.outOfControl.WithLabelValues(column).Inc()
}

// RecordCacheHit counts a hit in the named cache layer.
func RecordCacheHit(layer string) {
	globalManager.cacheHits.WithLabelValues(layer).Inc()
}

// RecordCacheMiss counts a miss in the named cache layer.
func RecordCacheMiss(layer string) {
	globalManager.cacheMisses.WithLabelValues(layer).Inc()
}

// RecordMeasurementAccepted increments the accepted measurements counter.
func RecordMeasurementAccepted() {
	globalManager.measurementsAccepted.Inc()
}

// RecordMeasurementDuplicate increments the duplicate measurements counter.
func RecordMeasurementDuplicate() {
	globalManager.measurementsDuplicate.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateRepositoryShardCount sets the total number of repository shards.
func UpdateRepositoryShardCount(count int) {
	globalManager.repositoryShardCount.Set(float64(count))
}

// UpdateRepositoryTotals sets the column and point gauges.
func UpdateRepositoryTotals(columns, points int) {
	globalManager.repositoryColumns.Set(float64(columns))
	globalManager.repositoryPoints.Set(float64(points))
}

// RecordRepositoryUpdateLatency records repository update operation latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository query operation latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
