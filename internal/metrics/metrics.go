package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fathom_sessions_started_total",
			Help: "Total number of research sessions started",
		},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fathom_sessions_completed_total",
			Help: "Total number of research sessions completed",
		},
		[]string{"status"},
	)

	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fathom_session_duration_seconds",
			Help:    "Research session duration in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 3600},
		},
	)

	// Stage metrics
	StagesPlanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fathom_stages_planned_total",
			Help: "Total number of research stages planned",
		},
		[]string{"fallback"},
	)

	StageAnalysesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fathom_stage_analyses_completed_total",
			Help: "Total number of stage analyses synthesized",
		},
	)

	// Node research metrics
	NodesResearched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fathom_nodes_researched_total",
			Help: "Total number of reasoning nodes researched",
		},
	)

	SearchDedupHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fathom_search_dedup_hits_total",
			Help: "Search results served from the dedup cache instead of fresh analysis",
		},
		[]string{"kind"}, // "cached_analysis" or "skipped"
	)

	SearchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fathom_search_failures_total",
			Help: "Search provider calls that failed and degraded to empty results",
		},
	)

	// Token metrics
	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fathom_tokens_used_total",
			Help: "Tokens consumed by generation calls",
		},
		[]string{"agent"},
	)

	CostUSD = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fathom_cost_usd_total",
			Help: "Accumulated generation cost in USD",
		},
	)

	// Report metrics
	CitationOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fathom_citation_overflows_total",
			Help: "Reports whose max inline citation exceeded the reference count",
		},
	)
)
