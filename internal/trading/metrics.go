package trading

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TradesTotal tracks paper trades appended to the ledger.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarkettracker_trading_trades_total",
			Help: "Total number of paper trades recorded",
		},
		[]string{"action", "side"},
	)

	// TradeErrorsTotal tracks rejected or failed trades.
	TradeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarkettracker_trading_trade_errors_total",
			Help: "Total number of rejected or failed trades",
		},
		[]string{"action"},
	)

	// ReconstructDurationSeconds tracks full-ledger reconstruction latency.
	ReconstructDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarkettracker_trading_reconstruct_duration_seconds",
		Help:    "Duration of position reconstruction from the ledger",
		Buckets: prometheus.DefBuckets,
	})
)
