// Package metrics provides Prometheus metrics for the grading service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values used across metrics.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
)

// Manager manages all Prometheus metrics for the grading service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Grading business metrics
	submissionsGraded  *prometheus.CounterVec
	submissionsFailed  *prometheus.CounterVec
	gridsGraded        prometheus.Counter
	gridsFailed        prometheus.Counter
	gradingLatency     *prometheus.HistogramVec
	verifications      *prometheus.CounterVec
	workMissing        prometheus.Counter
	scoreCaps          *prometheus.CounterVec
	templateFallbacks  prometheus.Counter
	costUSD            *prometheus.CounterVec
	rubricCacheLookups *prometheus.CounterVec
	duplicateBatches   prometheus.Counter

	// Model call metrics
	modelCalls   *prometheus.CounterVec
	modelLatency *prometheus.HistogramVec
	modelTokens  *prometheus.CounterVec
	modelRetries prometheus.Counter

	// Batch metrics
	batchesTotal  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	activeBatches prometheus.Gauge

	// Repository metrics
	repositoryWriteLatency prometheus.Histogram
	repositoryQueryLatency prometheus.Histogram
	repositoryBatches      prometheus.Gauge

	// Queue metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "grader",
		subsystem:        "engine",
		histogramBuckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		customLabels:     map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Grading business metrics
	m.submissionsGraded = auto.NewCounterVec(m.counterOpts("submissions_graded_total",
		"Total number of submissions graded"), []string{"strategy"})
	m.submissionsFailed = auto.NewCounterVec(m.counterOpts("submissions_failed_total",
		"Total number of submissions that produced a degraded result"), []string{"strategy"})
	m.gridsGraded = auto.NewCounter(m.counterOpts("grids_graded_total",
		"Total number of collage grids graded"))
	m.gridsFailed = auto.NewCounter(m.counterOpts("grids_failed_total",
		"Total number of collage grids whose grading call failed"))
	m.gradingLatency = auto.NewHistogramVec(m.histogramOpts("grading_latency_milliseconds",
		"End to end latency of one grading unit in milliseconds", nil), []string{"strategy"})
	m.verifications = auto.NewCounterVec(m.counterOpts("verifications_total",
		"Symbolic verification outcomes"), []string{"outcome"})
	m.workMissing = auto.NewCounter(m.counterOpts("required_work_zeroed_total",
		"Steps zeroed because required work was not shown"))
	m.scoreCaps = auto.NewCounterVec(m.counterOpts("score_caps_total",
		"Scores clamped to the rubric maximum"), []string{"level"})
	m.templateFallbacks = auto.NewCounter(m.counterOpts("template_fallbacks_total",
		"Collage batches whose layout template fell back to the first submission"))
	m.costUSD = auto.NewCounterVec(m.counterOpts("cost_usd_total",
		"Estimated model spend in USD"), []string{"purpose"})
	m.rubricCacheLookups = auto.NewCounterVec(m.counterOpts("rubric_cache_lookups_total",
		"Rubric compile cache lookups"), []string{"result"})
	m.duplicateBatches = auto.NewCounter(m.counterOpts("batches_duplicate_total",
		"Batch submissions rejected by the idempotency key"))

	// Model call metrics
	m.modelCalls = auto.NewCounterVec(m.counterOpts("model_calls_total",
		"Model calls by purpose, model and outcome"), []string{"purpose", "model", "outcome"})
	m.modelLatency = auto.NewHistogramVec(m.histogramOpts("model_call_latency_milliseconds",
		"Model call latency in milliseconds", nil), []string{"purpose"})
	m.modelTokens = auto.NewCounterVec(m.counterOpts("model_tokens_total",
		"Tokens consumed by direction"), []string{"direction"})
	m.modelRetries = auto.NewCounter(m.counterOpts("model_retries_total",
		"Model call retries"))

	// Batch metrics
	m.batchesTotal = auto.NewCounterVec(m.counterOpts("batches_total",
		"Finished batches by strategy and status"), []string{"strategy", "status"})
	m.batchDuration = auto.NewHistogramVec(m.histogramOpts("batch_duration_milliseconds",
		"Batch duration in milliseconds", nil), []string{"strategy"})
	m.activeBatches = auto.NewGauge(m.gaugeOpts("batches_active",
		"Batches currently running"))

	// Repository metrics
	m.repositoryWriteLatency = auto.NewHistogram(m.histogramOpts("repository_write_latency_milliseconds",
		"Repository write latency in milliseconds", []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000}))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogramOpts("repository_query_latency_milliseconds",
		"Repository query latency in milliseconds", []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000}))
	m.repositoryBatches = auto.NewGauge(m.gaugeOpts("repository_batches",
		"Batches held by the repository"))

	// Queue metrics
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Current size of the batch queue (backlog indicator)"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio",
		"Queue utilization ratio (current size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total",
		"Total number of messages enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total",
		"Total number of messages dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Total number of enqueue errors"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds",
		"Time a message waited in the queue in milliseconds", nil))

	// Worker metrics
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count",
		"Configured number of workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count",
		"Number of active workers"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count",
		"Number of idle workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds", nil))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total",
		"Total number of worker errors"))

	// HTTP metrics
	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", nil), []string{"endpoint", "method", "status_code"})

	// Error metrics
	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total",
		"Total number of errors by type"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of errors by endpoint"), []string{"endpoint", "method", "error_type"})

	// System metrics
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// RecordSubmissionGraded counts one submission and its latency.
func RecordSubmissionGraded(strategy string, failed bool, latency time.Duration) {
	globalManager.submissionsGraded.WithLabelValues(strategy).Inc()
	if failed {
		globalManager.submissionsFailed.WithLabelValues(strategy).Inc()
	}
	globalManager.gradingLatency.WithLabelValues(strategy).Observe(ms(latency))
}

// RecordGridGraded counts one collage grid.
func RecordGridGraded(failed bool) {
	globalManager.gridsGraded.Inc()
	if failed {
		globalManager.gridsFailed.Inc()
	}
}

// RecordVerification counts a symbolic verification outcome.
func RecordVerification(passed bool) {
	if passed {
		globalManager.verifications.WithLabelValues(OutcomePassed).Inc()
		return
	}
	globalManager.verifications.WithLabelValues(OutcomeFailed).Inc()
}

// RecordWorkMissing counts a step zeroed for missing work.
func RecordWorkMissing() {
	globalManager.workMissing.Inc()
}

// RecordScoreCap counts a clamped score at level.
func RecordScoreCap(level string) {
	globalManager.scoreCaps.WithLabelValues(level).Inc()
}

// RecordTemplateFallback counts a layout template fallback.
func RecordTemplateFallback() {
	globalManager.templateFallbacks.Inc()
}

// RecordCost adds estimated spend for purpose.
func RecordCost(purpose string, usd float64) {
	if usd <= 0 {
		return
	}
	globalManager.costUSD.WithLabelValues(purpose).Add(usd)
}

// RecordRubricCacheLookup counts a rubric cache hit or miss.
func RecordRubricCacheLookup(hit bool) {
	if hit {
		globalManager.rubricCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	globalManager.rubricCacheLookups.WithLabelValues("miss").Inc()
}

// RecordDuplicateBatch counts a batch rejected by its idempotency key.
func RecordDuplicateBatch() {
	globalManager.duplicateBatches.Inc()
}

// RecordModelCall records one model call.
func RecordModelCall(purpose, model string, latency time.Duration, err error) {
	globalManager.modelCalls.WithLabelValues(purpose, model, outcome(err)).Inc()
	globalManager.modelLatency.WithLabelValues(purpose).Observe(ms(latency))
}

// RecordModelTokens adds consumed tokens.
func RecordModelTokens(input, output int) {
	if input > 0 {
		globalManager.modelTokens.WithLabelValues("input").Add(float64(input))
	}
	if output > 0 {
		globalManager.modelTokens.WithLabelValues("output").Add(float64(output))
	}
}

// RecordModelRetry counts one retry.
func RecordModelRetry() {
	globalManager.modelRetries.Inc()
}

// RecordBatchStarted marks a batch as running.
func RecordBatchStarted() {
	globalManager.activeBatches.Inc()
}

// RecordBatchFinished records a finished batch.
func RecordBatchFinished(strategy, status string, duration time.Duration) {
	globalManager.activeBatches.Dec()
	globalManager.batchesTotal.WithLabelValues(strategy, status).Inc()
	globalManager.batchDuration.WithLabelValues(strategy).Observe(ms(duration))
}

// RecordRepositoryWriteLatency records repository write latency.
func RecordRepositoryWriteLatency(d time.Duration) {
	globalManager.repositoryWriteLatency.Observe(ms(d))
}

// RecordRepositoryQueryLatency records repository query latency.
func RecordRepositoryQueryLatency(d time.Duration) {
	globalManager.repositoryQueryLatency.Observe(ms(d))
}

// UpdateRepositoryBatches sets the number of stored batches.
func UpdateRepositoryBatches(n int) {
	globalManager.repositoryBatches.Set(float64(n))
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

// RecordQueueProcessingLatency records how long a message waited.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
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
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
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

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// GradingObserver forwards reconciliation corrections to the global metrics.
type GradingObserver struct{}

// Verified implements the reconciler observer.
func (GradingObserver) Verified(passed bool) { RecordVerification(passed) }

// WorkMissing implements the reconciler observer.
func (GradingObserver) WorkMissing() { RecordWorkMissing() }

// Capped implements the reconciler observer.
func (GradingObserver) Capped(level string) { RecordScoreCap(level) }
