// Package search fetches raw web search results and reduces them into
// summaries, images, and source citations.
package search

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Document is one raw search result. Content is an opaque blob expected to
// parse as a JSON object, but no schema is guaranteed.
type Document struct {
	Content string
}

// Provider is the abstraction over any web search backend.
type Provider interface {
	// Fetch returns raw result documents for the query, in result order.
	Fetch(ctx context.Context, query string) ([]Document, error)
	// Name returns the provider identifier (e.g. "serpapi").
	Name() string
}

// Metrics holds Prometheus metrics for the search pipeline.
type Metrics struct {
	FetchesTotal     *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	DocParseFailures prometheus.Counter
}

// NewMetrics creates search metrics registered on the given registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent",
			Subsystem: "search",
			Name:      "fetches_total",
			Help:      "Total search fetches.",
		}, []string{"provider", "status"}),

		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agent",
			Subsystem: "search",
			Name:      "fetch_duration_seconds",
			Help:      "Search fetch duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
		}, []string{"provider"}),

		DocParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agent",
			Subsystem: "search",
			Name:      "doc_parse_failures_total",
			Help:      "Total result documents skipped because they failed to parse.",
		}),
	}

	reg.MustRegister(m.FetchesTotal, m.FetchDuration, m.DocParseFailures)
	return m
}
