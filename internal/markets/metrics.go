package markets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GammaFetchDurationSeconds tracks Gamma API fetch latency, retries included.
	GammaFetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarkettracker_markets_gamma_fetch_duration_seconds",
		Help:    "Duration of market fetches from the Gamma API",
		Buckets: prometheus.DefBuckets,
	})

	// GammaFetchErrorsTotal tracks fetches that failed after all retries.
	GammaFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarkettracker_markets_gamma_fetch_errors_total",
		Help: "Total number of failed Gamma market fetches",
	})

	StatusCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarkettracker_markets_status_cache_hits_total",
		Help: "Total number of market status cache hits",
	})

	StatusCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarkettracker_markets_status_cache_misses_total",
		Help: "Total number of market status cache misses",
	})
)
