// Package metric provides Prometheus metrics registration and the core
// pipeline metrics shared across rtnews components.
package metric

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanzhidev/windsurf-rtnews/errors"
)

// MetricsRegistry manages the registration and lifecycle of metrics
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new metrics registry with core pipeline metrics
func NewMetricsRegistry() *MetricsRegistry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &MetricsRegistry{
		prometheusRegistry: prometheusRegistry,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}

	registry.Metrics = NewMetrics()
	registry.registerCoreMetrics()

	// Go runtime and process collectors
	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core pipeline metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// Handler returns an HTTP handler serving the registry in Prometheus format
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}

// Register registers a component-specific collector under a namespaced key.
// Duplicate registration of the same key is an error; re-registering an
// identical collector through Prometheus is tolerated.
func (r *MetricsRegistry) Register(componentName, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", componentName, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for component %s", metricName, componentName),
			"MetricsRegistry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			// Same collector registered twice through Prometheus; track and continue
			r.registeredMetrics[key] = alreadyRegErr.ExistingCollector
			return nil
		}
		return errors.WrapTransient(err, "MetricsRegistry", "Register", "prometheus registration")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// Unregister removes a previously registered component metric
func (r *MetricsRegistry) Unregister(componentName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", componentName, metricName)
	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	delete(r.registeredMetrics, key)
	return r.prometheusRegistry.Unregister(collector)
}

// registerCoreMetrics registers all core pipeline metrics
func (r *MetricsRegistry) registerCoreMetrics() {
	m := r.Metrics
	r.prometheusRegistry.MustRegister(
		m.ItemsAccepted,
		m.ItemsRejected,
		m.BroadcastsSent,
		m.BroadcastErrors,
		m.BroadcastDuration,
		m.SubscribersConnected,
		m.BufferSize,
		m.QueueDepth,
		m.MemoryUsageMB,
		m.BackpressurePaused,
		m.PauseEvents,
		m.ProcessingDuration,
	)
}
