package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process counters. Each instance owns its registry so
// tests do not share state.
type Metrics struct {
	registry    *prometheus.Registry
	resolutions *prometheus.CounterVec
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		// resolutions counts scene events by how the context was decided
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipectx_resolutions_total",
			Help: "Scene events by resolution outcome",
		}, []string{"outcome"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipectx_session_transitions_total",
			Help: "Session state transitions",
		}, []string{"from", "to"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipectx_bridge_events_total",
			Help: "Host events accepted by the bridge by type",
		}, []string{"type"}),
	}
}

// ObserveResolution counts one resolution outcome.
func (m *Metrics) ObserveResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// ObserveTransition counts one session transition.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// ObserveEvent counts one accepted bridge event.
func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
