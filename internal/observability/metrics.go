package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the runtime's Prometheus metrics.
type Metrics struct {
	// RunsTotal counts completed runs.
	// Labels: mode (normal|strict), outcome (final|client_tool|denied|error)
	RunsTotal *prometheus.CounterVec

	// ModelRequests counts model calls.
	// Labels: surface (planner|extraction|reply), provider, status (success|error)
	ModelRequests *prometheus.CounterVec

	// ModelRequestDuration measures model call latency in seconds.
	// Labels: surface, provider
	ModelRequestDuration *prometheus.HistogramVec

	// ModelTokens counts tokens by direction.
	// Labels: surface, type (input|output)
	ModelTokens *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error|blocked)
	ToolExecutions *prometheus.CounterVec

	// PolicyDenials counts strict-mode denials per tool.
	// Labels: tool
	PolicyDenials *prometheus.CounterVec

	// PlanRepairs counts repair round-trips per failing stage.
	// Labels: stage (plan|execute)
	PlanRepairs *prometheus.CounterVec
}

// NewMetrics registers the runtime metrics with the default registry.
// Call once at startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the runtime metrics with reg. Tests use
// throwaway registries to avoid duplicate-registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camel_runs_total",
				Help: "Completed runs by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		ModelRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camel_model_requests_total",
				Help: "Model calls by surface, provider, and status.",
			},
			[]string{"surface", "provider", "status"},
		),
		ModelRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "camel_model_request_duration_seconds",
				Help:    "Model call latency.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"surface", "provider"},
		),
		ModelTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camel_model_tokens_total",
				Help: "Token consumption by surface and direction.",
			},
			[]string{"surface", "type"},
		),
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camel_tool_executions_total",
				Help: "Tool invocations by name and status.",
			},
			[]string{"tool", "status"},
		),
		PolicyDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camel_policy_denials_total",
				Help: "Strict-mode policy denials per tool.",
			},
			[]string{"tool"},
		),
		PlanRepairs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camel_plan_repairs_total",
				Help: "Planner repair round-trips by failing stage.",
			},
			[]string{"stage"},
		),
	}
}
