// Package metrics holds the Prometheus instruments for the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Addon network
	AddonRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsync_addon_requests_total",
			Help: "Addon requests by resource and outcome",
		},
		[]string{"resource", "outcome"}, // outcome: ok, transport, decode, rejected
	)

	AddonRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelsync_addon_request_duration_seconds",
			Help:    "Addon request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	AddonCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsync_addon_cache_hits_total",
			Help: "Manifest and meta lookups served from cache",
		},
		[]string{"resource"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Candidate filter
	CandidateVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsync_candidate_verdicts_total",
			Help: "Stream candidates by filter verdict",
		},
		[]string{"verdict"},
	)

	// Reconciliation
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsync_reconciliations_total",
			Help: "Reconciliations by outcome",
		},
		[]string{"outcome"}, // synced, no_sources, fresh, error
	)

	AlternatesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelsync_alternates_written_total",
			Help: "Alternate entries created or updated",
		},
	)

	AlternatesRetired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsync_alternates_retired_total",
			Help: "Stale alternates by retirement action",
		},
		[]string{"action"}, // hidden, deleted
	)

	// Importer
	TitlesImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsync_titles_imported_total",
			Help: "Catalog entries created by the importer",
		},
		[]string{"kind"},
	)

	// Store
	StoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsync_store_operations_total",
			Help: "Catalog store operations by method and result",
		},
		[]string{"method", "result"},
	)

	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelsync_store_operation_duration_seconds",
			Help:    "Catalog store operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"method"},
	)
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
