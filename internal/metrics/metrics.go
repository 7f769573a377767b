// Package metrics holds the Prometheus collectors for the lookup pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_lookups_total",
			Help: "Remote contact lookups by outcome (found, not_found, error).",
		},
		[]string{"outcome"},
	)

	CacheResolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_cache_resolves_total",
			Help: "Contact cache resolves by result (hit, miss).",
		},
		[]string{"result"},
	)

	OverlaysRenderedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_overlays_rendered_total",
			Help: "Overlays inserted into the page by kind (list, header).",
		},
		[]string{"kind"},
	)

	EngineResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_engine_resets_total",
			Help: "Observation engine rebuilds.",
		},
	)
)

func init() {
	prometheus.MustRegister(LookupsTotal, CacheResolvesTotal, OverlaysRenderedTotal, EngineResetsTotal)
}
