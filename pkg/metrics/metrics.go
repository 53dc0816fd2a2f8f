// Package metrics exposes prometheus counters for events, runs, dispatches and credential use.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/dukex/automata/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "automata"

type Metrics struct {
	registry *prometheus.Registry

	EventsReceived     *prometheus.CounterVec
	RunsTotal          *prometheus.CounterVec
	DispatchesTotal    *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec
	CredentialAccesses *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_received_total",
				Help:      "Total number of inbound events accepted",
			},
			[]string{"event"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of trigger runs by terminal status",
			},
			[]string{"status"},
		),
		DispatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of action dispatches by outcome",
			},
			[]string{"action_type", "outcome"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of action dispatches in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action_type"},
		),
		CredentialAccesses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_accesses_total",
				Help:      "Total number of credential proxy calls by status",
			},
			[]string{"action", "status"},
		),
	}
}

// Registry returns the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) EventReceived(identifier string) {
	if m == nil {
		return
	}

	m.EventsReceived.WithLabelValues(identifier).Inc()
}

func (m *Metrics) RunFinished(status models.ExecutionStatus) {
	if m == nil {
		return
	}

	m.RunsTotal.WithLabelValues(string(status)).Inc()
}

// ActionDispatched records one dispatch. outcome is success, failed or error.
func (m *Metrics) ActionDispatched(actionType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}

	m.DispatchesTotal.WithLabelValues(actionType, outcome).Inc()
	m.DispatchDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

// CredentialAccess implements credentials.Observer.
func (m *Metrics) CredentialAccess(action string, status models.CredentialAccessStatus) {
	if m == nil {
		return
	}

	m.CredentialAccesses.WithLabelValues(action, string(status)).Inc()
}
