package dca

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubscriptionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarkettracker_dca_subscriptions_created_total",
		Help: "Total number of DCA subscriptions created",
	})

	BackfilledTradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarkettracker_dca_backfilled_trades_total",
		Help: "Total number of trades placed by DCA backfill",
	})

	DailyTradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarkettracker_dca_daily_trades_total",
		Help: "Total number of trades placed by daily DCA execution",
	})

	// DailySkipsTotal tracks subscriptions that did not trade, by reason.
	DailySkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarkettracker_dca_daily_skips_total",
		Help: "Total number of skipped daily DCA executions",
	}, []string{"reason"})

	DailyRunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarkettracker_dca_daily_run_duration_seconds",
		Help:    "Duration of a daily DCA run",
		Buckets: prometheus.DefBuckets,
	})
)
