package listing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes.
const (
	outcomeSuccess    = "success"
	outcomeError      = "error"
	outcomeSuperseded = "superseded"
	outcomeOutOfRange = "out_of_range"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_listing_fetches_total",
			Help: "Catalog fetches by listing profile and outcome",
		},
		[]string{"profile", "outcome"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_listing_fetch_duration_seconds",
			Help:    "Catalog fetch latency by listing profile",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"profile"},
	)

	debouncedFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_listing_debounced_fetches_total",
			Help: "Fetches fired after the search debounce delay elapsed",
		},
		[]string{"profile"},
	)

	clientDerivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_listing_client_derivations_total",
			Help: "Interactions answered by re-deriving the visible list without a fetch",
		},
		[]string{"profile"},
	)
)
