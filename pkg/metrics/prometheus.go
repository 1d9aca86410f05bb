// Package metrics provides Prometheus metrics for the pulsegate alert service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the pulsegate service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Core Business Metrics - the monitoring pipeline
	samplesIngested prometheus.Counter
	detections      *prometheus.CounterVec
	alertsConfirmed prometheus.Counter
	alertsCancelled prometheus.Counter
	alertsExpired   prometheus.Counter
	emergencies     prometheus.Counter

	// Delivery Metrics - notification queue performance
	notificationsEnqueued prometheus.Counter
	deliveryAttempts      prometheus.Counter
	notificationsSent     prometheus.Counter
	notificationsFailed   prometheus.Counter
	notificationsExpired  prometheus.Counter
	retriesScheduled      prometheus.Counter
	sendLatency           prometheus.Histogram
	cycleLatency          prometheus.Histogram
	queueDepth            prometheus.Gauge

	// Store Metrics - durable store operations
	storeOpLatency prometheus.Histogram
	storeErrors    prometheus.Counter

	// Network Metrics - connectivity state
	networkOnline      prometheus.Gauge
	networkTransitions prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pulsegate",
		subsystem:        "monitor",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Core Business Metrics
	m.samplesIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "samples_ingested_total",
		Help:      "Total number of heart-rate samples ingested",
	})

	m.detections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "detections_total",
		Help:      "Total number of deviation detections by kind",
	}, []string{"kind"})

	m.alertsConfirmed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alerts_confirmed_total",
		Help:      "Total number of alerts explicitly confirmed by the user",
	})

	m.alertsCancelled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alerts_cancelled_total",
		Help:      "Total number of alerts cancelled during the confirmation window",
	})

	m.alertsExpired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alerts_countdown_expired_total",
		Help:      "Total number of alerts confirmed by countdown expiry",
	})

	m.emergencies = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "emergencies_total",
		Help:      "Total number of emergency events raised",
	})

	// Delivery Metrics
	m.notificationsEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_enqueued_total",
		Help:      "Total number of notifications fanned out to the delivery queue",
	})

	m.deliveryAttempts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "delivery_attempts_total",
		Help:      "Total number of transport send attempts",
	})

	m.notificationsSent = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_sent_total",
		Help:      "Total number of notifications delivered successfully",
	})

	m.notificationsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_failed_total",
		Help:      "Total number of transient delivery failures",
	})

	m.notificationsExpired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_expired_total",
		Help:      "Total number of notifications that exhausted all attempts",
	})

	m.retriesScheduled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retries_scheduled_total",
		Help:      "Total number of backoff retries scheduled",
	})

	m.sendLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "send_latency_milliseconds",
		Help:      "Histogram of transport send latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.cycleLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cycle_latency_milliseconds",
		Help:      "Histogram of delivery cycle latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_depth",
		Help:      "Current number of notifications tracked by the delivery queue",
	})

	// Store Metrics
	m.storeOpLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_op_latency_milliseconds",
		Help:      "Histogram of durable store operation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_errors_total",
		Help:      "Total number of durable store operation errors",
	})

	// Network Metrics
	m.networkOnline = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "network_online",
		Help:      "Current connectivity state (1 online, 0 offline)",
	})

	m.networkTransitions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "network_transitions_total",
		Help:      "Total number of online/offline transitions observed",
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint, method, and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "Histogram of HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	// Enhanced Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_component_total",
		Help:      "Total number of errors by component and error type",
	}, []string{"component", "error_type"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_type_total",
		Help:      "Total number of errors by type and severity",
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_endpoint_total",
		Help:      "Total number of errors by endpoint, method, and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.errorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "error_latency_milliseconds",
		Help:      "Histogram of latency for operations that resulted in errors",
		Buckets:   m.histogramBuckets,
	}, []string{"component", "error_type"})

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_bytes",
		Help:      "Current allocated memory in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutines",
		Help:      "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_milliseconds",
		Help:      "Histogram of GC pause time in milliseconds",
		Buckets:   m.histogramBuckets,
	})
}

// Business Metrics Functions.

// RecordSampleIngested increments the ingested samples counter.
func RecordSampleIngested() {
	globalManager.samplesIngested.Inc()
}

// RecordDetection increments the detections counter for a kind.
func RecordDetection(kind string) {
	globalManager.detections.WithLabelValues(kind).Inc()
}

// RecordAlertConfirmed increments the user-confirmed alerts counter.
func RecordAlertConfirmed() {
	globalManager.alertsConfirmed.Inc()
}

// RecordAlertCancelled increments the cancelled alerts counter.
func RecordAlertCancelled() {
	globalManager.alertsCancelled.Inc()
}

// RecordAlertCountdownExpired increments the countdown-expiry confirmations counter.
func RecordAlertCountdownExpired() {
	globalManager.alertsExpired.Inc()
}

// RecordEmergency increments the emergencies counter.
func RecordEmergency() {
	globalManager.emergencies.Inc()
}

// Delivery Metrics Functions.

// RecordNotificationEnqueued increments the enqueued notifications counter.
func RecordNotificationEnqueued() {
	globalManager.notificationsEnqueued.Inc()
}

// RecordDeliveryAttempt increments the transport attempts counter.
func RecordDeliveryAttempt() {
	globalManager.deliveryAttempts.Inc()
}

// RecordNotificationSent increments the delivered notifications counter.
func RecordNotificationSent() {
	globalManager.notificationsSent.Inc()
}

// RecordNotificationFailed increments the transient failures counter.
func RecordNotificationFailed() {
	globalManager.notificationsFailed.Inc()
}

// RecordNotificationExpired increments the exhausted notifications counter.
func RecordNotificationExpired() {
	globalManager.notificationsExpired.Inc()
}

// RecordRetryScheduled increments the scheduled retries counter.
func RecordRetryScheduled() {
	globalManager.retriesScheduled.Inc()
}

// RecordSendLatency records transport send latency in milliseconds.
func RecordSendLatency(latencyMs float64) {
	globalManager.sendLatency.Observe(latencyMs)
}

// RecordCycleLatency records delivery cycle latency in milliseconds.
func RecordCycleLatency(latencyMs float64) {
	globalManager.cycleLatency.Observe(latencyMs)
}

// UpdateQueueDepth sets the current delivery queue depth.
func UpdateQueueDepth(depth int) {
	globalManager.queueDepth.Set(float64(depth))
}

// Store Metrics Functions.

// RecordStoreLatency records durable store operation latency in milliseconds.
func RecordStoreLatency(latencyMs float64) {
	globalManager.storeOpLatency.Observe(latencyMs)
}

// RecordStoreError increments the store errors counter.
func RecordStoreError() {
	globalManager.storeErrors.Inc()
}

// Network Metrics Functions.

// UpdateNetworkOnline sets the connectivity gauge.
func UpdateNetworkOnline(online bool) {
	if online {
		globalManager.networkOnline.Set(1)
		return
	}
	globalManager.networkOnline.Set(0)
}

// RecordNetworkTransition increments the connectivity transitions counter.
func RecordNetworkTransition() {
	globalManager.networkTransitions.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Enhanced Error Metrics Functions.

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

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

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
