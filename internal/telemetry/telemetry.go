// Package telemetry exposes the agent's prometheus metrics on a private
// registry, served by the ops server.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the pipeline counters and gauges.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal        prometheus.Counter
	ActionsPlanned    prometheus.Counter
	ActionsBlocked    *prometheus.CounterVec
	ActionsSent       *prometheus.CounterVec
	ActionsDead       prometheus.Counter
	RateLimited       *prometheus.CounterVec
	TransientFailures prometheus.Counter
	OutboxDepth       prometheus.Gauge
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dragon_ticks_total",
			Help: "Completed pipeline ticks.",
		}),
		ActionsPlanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dragon_actions_planned_total",
			Help: "Candidate actions produced by the planner.",
		}),
		ActionsBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dragon_actions_blocked_total",
			Help: "Actions rejected by a policy gate.",
		}, []string{"gate"}),
		ActionsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dragon_actions_sent_total",
			Help: "Actions executed successfully.",
		}, []string{"channel"}),
		ActionsDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dragon_actions_dead_total",
			Help: "Jobs moved to the dead-letter area.",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dragon_actions_rate_limited_total",
			Help: "Candidate actions dropped by the per-channel rate limiter.",
		}, []string{"channel"}),
		TransientFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dragon_transient_failures_total",
			Help: "Send attempts that failed transiently and were left queued.",
		}),
		OutboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dragon_outbox_depth",
			Help: "Jobs currently pending in the outbox.",
		}),
	}
	reg.MustRegister(
		m.TicksTotal,
		m.ActionsPlanned,
		m.ActionsBlocked,
		m.ActionsSent,
		m.ActionsDead,
		m.RateLimited,
		m.TransientFailures,
		m.OutboxDepth,
	)
	return m
}

// Handler serves the registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
