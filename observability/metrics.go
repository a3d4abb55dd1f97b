package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	claimlinkMetricsOnce sync.Once
	claimlinkRegistry    *ClaimlinkMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "claimlink",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "claimlink",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "claimlink",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "claimlink",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// ClaimlinkMetrics tracks escrow operations and the event journal.
type ClaimlinkMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	failures   *prometheus.CounterVec
	events     *prometheus.CounterVec
	fees       *prometheus.GaugeVec
}

// Claimlink returns the singleton metrics registry for the escrow node.
func Claimlink() *ClaimlinkMetrics {
	claimlinkMetricsOnce.Do(func() {
		claimlinkRegistry = &ClaimlinkMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "claimlink",
				Subsystem: "escrow",
				Name:      "operations_total",
				Help:      "Count of escrow operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "claimlink",
				Subsystem: "escrow",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for escrow operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "claimlink",
				Subsystem: "escrow",
				Name:      "failures_total",
				Help:      "Count of rejected escrow operations segmented by category and reason.",
			}, []string{"operation", "category", "reason"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "claimlink",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of journaled escrow events segmented by type.",
			}, []string{"type"}),
			fees: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "claimlink",
				Subsystem: "escrow",
				Name:      "accrued_fees",
				Help:      "Withdrawable fee balance per denomination in base units.",
			}, []string{"denomination"}),
		}
		prometheus.MustRegister(
			claimlinkRegistry.operations,
			claimlinkRegistry.latency,
			claimlinkRegistry.failures,
			claimlinkRegistry.events,
			claimlinkRegistry.fees,
		)
	})
	return claimlinkRegistry
}

// ObserveOperation records one escrow call. category and reason are empty on
// success.
func (m *ClaimlinkMetrics) ObserveOperation(operation, category, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if category != "" {
		outcome = "error"
		if reason == "" {
			reason = "unknown"
		}
		m.failures.WithLabelValues(op, category, reason).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordEvent increments the journaled event counter.
func (m *ClaimlinkMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

// SetAccruedFees publishes the fee balance for a denomination. Balances beyond
// float64 precision are reported approximately.
func (m *ClaimlinkMetrics) SetAccruedFees(denomination string, amount float64) {
	if m == nil {
		return
	}
	m.fees.WithLabelValues(strings.ToLower(denomination)).Set(amount)
}
