package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters of the image domain services.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	orphans    *prometheus.CounterVec
}

// New creates the counters and registers them on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_storage",
			Name:      "operations_total",
			Help:      "Image domain operations by outcome.",
		}, []string{"domain", "operation", "outcome"}),
		orphans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_storage",
			Name:      "orphans_total",
			Help:      "Stored objects left without metadata, requiring cleanup.",
		}, []string{"domain", "reason"}),
	}

	m.registry.MustRegister(m.operations, m.orphans)

	return m
}

// Observe counts one operation outcome.
func (m *Metrics) Observe(domain, operation, outcome string) {
	m.operations.WithLabelValues(domain, operation, outcome).Inc()
}

// Orphan counts one orphaned object.
func (m *Metrics) Orphan(domain, reason string) {
	m.orphans.WithLabelValues(domain, reason).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
