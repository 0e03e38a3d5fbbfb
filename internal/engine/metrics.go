package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the conversation engine.
type Metrics struct {
	RouteDecisions     *prometheus.CounterVec
	CompletionsTotal   *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
	TokensUsed         *prometheus.CounterVec
}

// NewMetrics creates engine metrics registered on the given registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RouteDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent",
			Subsystem: "engine",
			Name:      "route_decisions_total",
			Help:      "Total routed questions by classification label.",
		}, []string{"label"}),

		CompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent",
			Subsystem: "engine",
			Name:      "completions_total",
			Help:      "Total completion backend calls.",
		}, []string{"mode", "status"}),

		CompletionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agent",
			Subsystem: "engine",
			Name:      "completion_duration_seconds",
			Help:      "Completion backend call duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),

		TokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent",
			Subsystem: "engine",
			Name:      "tokens_used_total",
			Help:      "Total LLM tokens consumed.",
		}, []string{"mode", "direction"}),
	}

	reg.MustRegister(m.RouteDecisions, m.CompletionsTotal, m.CompletionDuration, m.TokensUsed)
	return m
}
