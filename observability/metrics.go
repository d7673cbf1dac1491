package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ModuleMetricsRegistry aggregates the prometheus collectors used to record
// escrow RPC activity.
type ModuleMetricsRegistry struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *ModuleMetricsRegistry
)

// ModuleMetrics returns the lazily-initialised metrics registry used to
// record RPC module activity.
func ModuleMetrics() *ModuleMetricsRegistry {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &ModuleMetricsRegistry{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultd",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultd",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vaultd",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// ObserveRequest records one completed module request.
func (m *ModuleMetricsRegistry) ObserveRequest(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveError records one failed module request with its JSON-RPC error code.
func (m *ModuleMetricsRegistry) ObserveError(method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, code).Inc()
}
