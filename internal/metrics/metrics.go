// Package metrics provides Prometheus metrics for the control plane.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts front-end requests by protocol, operation, and outcome.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserctl_requests_total",
			Help: "Total number of front-end requests processed",
		},
		[]string{"protocol", "operation", "status"},
	)

	// RequestDuration tracks front-end request duration by protocol and operation.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "browserctl_request_duration_seconds",
			Help:    "Front-end request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"protocol", "operation"},
	)

	// ActionsTotal counts executed browser actions by type and outcome.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserctl_actions_total",
			Help: "Total browser actions executed, by action type and outcome",
		},
		[]string{"action_type", "status"},
	)

	// ActionDuration tracks browser action execution time by type.
	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "browserctl_action_duration_seconds",
			Help:    "Browser action execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"action_type"},
	)

	// ErrorsTotal counts tracked error envelopes by category and code.
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserctl_errors_total",
			Help: "Total tracked errors by category and code",
		},
		[]string{"category", "code"},
	)

	// BrowserPoolSize shows the current number of live browser instances.
	BrowserPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserctl_browser_pool_size",
			Help: "Current number of live browser instances in the pool",
		},
	)

	// BrowserPoolQueueLength shows callers currently waiting on Acquire.
	BrowserPoolQueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserctl_browser_pool_queue_length",
			Help: "Callers currently waiting for a browser to become available",
		},
	)

	// BrowserPoolAcquired counts total successful pool acquisitions.
	BrowserPoolAcquired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "browserctl_browser_pool_acquired_total",
			Help: "Total browser leases acquired from the pool",
		},
	)

	// BrowserPoolRecycled counts browsers recycled after exceeding their age or error budget.
	BrowserPoolRecycled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "browserctl_browser_pool_recycled_total",
			Help: "Total browsers recycled by the pool",
		},
	)

	// ActiveSessions shows the current number of live sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserctl_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// ActiveContexts shows the current number of live contexts.
	ActiveContexts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserctl_active_contexts",
			Help: "Number of active browser contexts",
		},
	)

	// ActivePages shows the current number of open pages.
	ActivePages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserctl_active_pages",
			Help: "Number of open pages across all contexts",
		},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserctl_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// MemorySysBytes shows system memory obtained.
	MemorySysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserctl_memory_sys_bytes",
			Help: "Total memory obtained from system",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserctl_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "browserctl_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ActionsTotal,
		ActionDuration,
		ErrorsTotal,
		BrowserPoolSize,
		BrowserPoolQueueLength,
		BrowserPoolAcquired,
		BrowserPoolRecycled,
		ActiveSessions,
		ActiveContexts,
		ActivePages,
		MemoryUsageBytes,
		MemorySysBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector starts a goroutine that periodically updates
// process-level memory and goroutine metrics.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	MemorySysBytes.Set(float64(m.Sys))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRequest records metrics for a completed front-end request.
func RecordRequest(protocol, operation, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(protocol, operation, status).Inc()
	RequestDuration.WithLabelValues(protocol, operation).Observe(duration.Seconds())
}

// RecordAction records metrics for one executed browser action.
func RecordAction(actionType, status string, duration time.Duration) {
	ActionsTotal.WithLabelValues(actionType, status).Inc()
	ActionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

// RecordError records one tracked error envelope.
func RecordError(category, code string) {
	ErrorsTotal.WithLabelValues(category, code).Inc()
}

// RecordAcquired records a successful browser pool acquisition.
func RecordAcquired() {
	BrowserPoolAcquired.Inc()
}

// RecordRecycled records a browser recycled out of the pool.
func RecordRecycled() {
	BrowserPoolRecycled.Inc()
}

// UpdatePoolMetrics updates browser pool gauges.
func UpdatePoolMetrics(size, queueLength int) {
	BrowserPoolSize.Set(float64(size))
	BrowserPoolQueueLength.Set(float64(queueLength))
}

// UpdateSessionMetrics updates the active session gauge.
func UpdateSessionMetrics(count int) {
	ActiveSessions.Set(float64(count))
}

// UpdateContextMetrics updates the active context gauge.
func UpdateContextMetrics(count int) {
	ActiveContexts.Set(float64(count))
}

// UpdatePageMetrics updates the active page gauge.
func UpdatePageMetrics(count int) {
	ActivePages.Set(float64(count))
}
