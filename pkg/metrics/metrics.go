// Package metrics exposes Prometheus collectors for the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "knowbot"

type Metrics struct {
	registry *prometheus.Registry

	turns         *prometheus.CounterVec
	aclReloads    *prometheus.CounterVec
	identityCache *prometheus.CounterVec
	backend       *prometheus.HistogramVec
}

// New registers all collectors on registry. A nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "User turns by outcome.",
		}, []string{"outcome"}),
		aclReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acl_reloads_total",
			Help:      "ACL reload attempts by result.",
		}, []string{"result"}),
		identityCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_cache_total",
			Help:      "Directory lookups by cache result.",
		}, []string{"result"}),
		backend: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_duration_seconds",
			Help:      "Backend answer latency by delivery mode.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"mode"}),
	}

	registry.MustRegister(m.turns, m.aclReloads, m.identityCache, m.backend)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTurn(outcome model.Outcome) {
	m.turns.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) ObserveBackend(mode string, d time.Duration) {
	m.backend.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveReload matches the ACL watcher reload hook.
func (m *Metrics) ObserveReload(_ string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.aclReloads.WithLabelValues(result).Inc()
}

// ObserveIdentityCache matches the cached directory hook.
func (m *Metrics) ObserveIdentityCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.identityCache.WithLabelValues(result).Inc()
}
