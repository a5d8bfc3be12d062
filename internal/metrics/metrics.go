package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedformulation"

// Registry owns the server's Prometheus collectors. It satisfies
// optimizer.Recorder.
type Registry struct {
	reg *prometheus.Registry

	formulations  *prometheus.CounterVec
	solveDuration prometheus.Histogram
	solverStatus  *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
}

// NewRegistry creates a registry with the formulation metrics and the
// standard Go and process collectors
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		formulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "formulations_total",
			Help:      "Formulations by terminal outcome (assembled, validation-error, infeasible, solver-error).",
		}, []string{"outcome"}),
		solveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Wall time of a single LP solve.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		solverStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_status_total",
			Help:      "LP solves by solver status.",
		}, []string{"status"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool calls by tool name and result.",
		}, []string{"tool", "result"}),
	}

	r.reg.MustRegister(
		r.formulations,
		r.solveDuration,
		r.solverStatus,
		r.toolCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveSolve records one solve
func (r *Registry) ObserveSolve(status string, duration time.Duration) {
	r.solverStatus.WithLabelValues(status).Inc()
	r.solveDuration.Observe(duration.Seconds())
}

// ObserveOutcome records the terminal state of one formulation
func (r *Registry) ObserveOutcome(outcome string) {
	r.formulations.WithLabelValues(outcome).Inc()
}

// ObserveToolCall records one MCP tool invocation; result is "ok", "rejected" or "error"
func (r *Registry) ObserveToolCall(tool, result string) {
	r.toolCalls.WithLabelValues(tool, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests and embedding
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
