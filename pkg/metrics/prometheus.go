// Package metrics provides Prometheus metrics for the race scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes.
const (
	OutcomePersisted = "persisted"
	OutcomeAborted   = "aborted"
	OutcomeBusy      = "busy"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scoring runs
	runs              *prometheus.CounterVec
	runDuration       prometheus.Histogram
	stageDuration     *prometheus.HistogramVec
	athletesScored    prometheus.Counter
	finishers         prometheus.Histogram
	bonusesAwarded    *prometheus.CounterVec
	lockWait          prometheus.Histogram
	locksActive       prometheus.Gauge
	notifyFailures    prometheus.Counter
	ruleSetsPublished prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerActive  prometheus.Gauge
	workerLatency prometheus.Histogram
	workerErrors  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "racescore",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.runs = auto.NewCounterVec(m.counter("runs_total", "Scoring runs by terminal outcome"), []string{"outcome"})
	m.runDuration = auto.NewHistogram(m.histogram("run_duration_milliseconds", "Wall time of a scoring run", m.histogramBuckets))
	m.stageDuration = auto.NewHistogramVec(m.histogram("stage_duration_milliseconds", "Wall time per pipeline stage", m.histogramBuckets), []string{"stage"})
	m.athletesScored = auto.NewCounter(m.counter("athletes_scored_total", "Result rows written by scoring runs"))
	m.finishers = auto.NewHistogram(m.histogram("finishers_per_run", "Ranked finishers per run", []float64{1, 5, 10, 25, 50, 100, 250, 1000}))
	m.bonusesAwarded = auto.NewCounterVec(m.counter("bonuses_awarded_total", "Performance bonuses awarded by type"), []string{"type"})
	m.lockWait = auto.NewHistogram(m.histogram("lock_wait_milliseconds", "Time spent waiting for the per-game lock", m.histogramBuckets))
	m.locksActive = auto.NewGauge(m.gauge("locks_active", "Games currently locked or awaited"))
	m.notifyFailures = auto.NewCounter(m.counter("notify_failures_total", "game.scored notifications that failed to publish"))
	m.ruleSetsPublished = auto.NewGauge(m.gauge("rule_sets_published", "Rule-set versions available"))

	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Pending async score requests"))
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Maximum pending async score requests"))
	m.queueEnqueued = auto.NewCounter(m.counter("queue_enqueued_total", "Score requests enqueued"))
	m.queueDequeued = auto.NewCounter(m.counter("queue_dequeued_total", "Score requests handed to workers"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counter("queue_enqueue_errors_total", "Score requests refused by the queue"), []string{"reason"})

	m.workerActive = auto.NewGauge(m.gauge("workers_active", "Workers in the pool"))
	m.workerLatency = auto.NewHistogram(m.histogram("worker_processing_milliseconds", "Time a worker spends on one request", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counter("worker_errors_total", "Async requests that ended in error"))

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds", "HTTP request duration", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counter("errors_total", "Errors by component and kind"), []string{"component", "error_type"})
}

// RecordRun counts a terminal run outcome and its duration.
func RecordRun(outcome string, durationMs float64) {
	globalManager.runs.WithLabelValues(outcome).Inc()
	globalManager.runDuration.Observe(durationMs)
}

// RecordStage observes one pipeline stage.
func RecordStage(stage string, durationMs float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(durationMs)
}

// RecordScoredRows counts rows written and ranked finishers for a run.
func RecordScoredRows(rows, finishers int) {
	globalManager.athletesScored.Add(float64(rows))
	globalManager.finishers.Observe(float64(finishers))
}

// RecordBonus counts one awarded bonus.
func RecordBonus(bonusType string) {
	globalManager.bonusesAwarded.WithLabelValues(bonusType).Inc()
}

// RecordLockWait observes time spent acquiring a game lock.
func RecordLockWait(waitMs float64) {
	globalManager.lockWait.Observe(waitMs)
}

// UpdateLocksActive sets the number of live game locks.
func UpdateLocksActive(n int64) {
	globalManager.locksActive.Set(float64(n))
}

// RecordNotifyFailure counts a failed downstream notification.
func RecordNotifyFailure() {
	globalManager.notifyFailures.Inc()
}

// UpdateRuleSetsPublished sets the number of available rule-set versions.
func UpdateRuleSetsPublished(n int) {
	globalManager.ruleSetsPublished.Set(float64(n))
}

// UpdateQueueSize sets the pending request count.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue bound.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted request.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a request handed to a worker.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a refused request.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the pool size.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerProcessingLatency observes one async request.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed async request.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent counts an error with component and kind labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the registry holding the global collectors.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
