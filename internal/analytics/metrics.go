package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CurveDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarkettracker_analytics_curve_duration_seconds",
		Help:    "Duration of equity curve replay",
		Buckets: prometheus.DefBuckets,
	})

	MonteCarloDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarkettracker_analytics_monte_carlo_duration_seconds",
		Help:    "Duration of Monte Carlo resampling",
		Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30},
	})

	// MonteCarloErrorsTotal counts runs aborted by cancellation or deadline.
	MonteCarloErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarkettracker_analytics_monte_carlo_errors_total",
		Help: "Total number of aborted Monte Carlo runs",
	})
)
