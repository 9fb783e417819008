// Package metrics exposes the Prometheus collectors the controller and
// HTTP API update, following client_golang's standard
// register-and-expose pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Registry bundles every collector this service exports.
type Registry struct {
	reg *prometheus.Registry

	AgentsByState   *prometheus.GaugeVec
	TasksByState    *prometheus.GaugeVec
	FailedTaskSweep prometheus.Counter
	SupervisionCycle prometheus.Histogram
}

// New builds and registers the collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		AgentsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pymada_agents",
			Help: "Number of registered agents by agent_state.",
		}, []string{"state"}),
		TasksByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pymada_tasks",
			Help: "Number of tasks by task_state.",
		}, []string{"state"}),
		FailedTaskSweep: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pymada_failed_task_sweeps_total",
			Help: "Number of times the controller reclaimed a task from a silently-lost agent.",
		}),
		SupervisionCycle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pymada_supervision_cycle_seconds",
			Help:    "Duration of one per-agent supervision cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.AgentsByState, m.TasksByState, m.FailedTaskSweep, m.SupervisionCycle)
	return m
}

// Handler returns the HTTP handler that serves this registry's exposition
// format, for mounting at /metrics.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
