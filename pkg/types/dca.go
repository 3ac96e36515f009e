package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionState is the stored DCA lifecycle: active -> cancelled | exhausted.
// A subscription is first stored already active, in the same transaction as its backfill.
type SubscriptionState string

const (
	StateActive    SubscriptionState = "active"
	StateCancelled SubscriptionState = "cancelled"
	StateExhausted SubscriptionState = "exhausted"
)

// Subscription is a recurring daily OPEN on one (market, side).
type Subscription struct {
	DCAID             string            `json:"dca_id"`
	MarketID          string            `json:"market_id"`
	Side              Side              `json:"side"`
	QuantityPerDay    int64             `json:"quantity_per_day"`
	CreatedAt         time.Time         `json:"created_at"`
	State             SubscriptionState `json:"state"`
	LastExecutedDate  string            `json:"last_executed_date,omitempty"`
	TotalTradesPlaced int               `json:"total_trades_placed"`

	Question string `json:"question,omitempty"`
}

// Active reports whether daily execution applies.
func (s *Subscription) Active() bool {
	return s.State == StateActive
}

// SubscribeResult is returned by a successful subscribe.
type SubscribeResult struct {
	DCAID            string `json:"dca_id"`
	MarketID         string `json:"market_id"`
	Side             Side   `json:"side"`
	QuantityPerDay   int64  `json:"quantity_per_day"`
	TradesBackfilled int    `json:"trades_backfilled"`
}

// DCASkip explains why a subscription did not trade on a daily run.
type DCASkip struct {
	DCAID  string `json:"dca_id"`
	Reason string `json:"reason"`
}

// DailyExecutionResult summarizes one daily DCA run.
type DailyExecutionResult struct {
	Day                    string    `json:"day"`
	SubscriptionsProcessed int       `json:"subscriptions_processed"`
	TradesPlaced           int       `json:"trades_placed"`
	Skipped                []DCASkip `json:"skipped,omitempty"`
}

// DCAAnalytics is the performance of one subscription's trades.
type DCAAnalytics struct {
	DCAID            string            `json:"dca_id"`
	MarketID         string            `json:"market_id"`
	Question         string            `json:"question,omitempty"`
	Side             Side              `json:"side"`
	State            SubscriptionState `json:"state"`
	QuantityPerDay   int64             `json:"quantity_per_day"`
	TotalTrades      int               `json:"total_trades"`
	TotalShares      int64             `json:"total_shares"`
	TotalInvested    decimal.Decimal   `json:"total_invested"`
	AvgEntryPrice    decimal.Decimal   `json:"avg_entry_price"`
	PriceKnown       bool              `json:"price_known"`
	CurrentPrice     *decimal.Decimal  `json:"current_price"`
	CurrentValue     *decimal.Decimal  `json:"current_value"`
	UnrealizedPnL    *decimal.Decimal  `json:"unrealized_pnl"`
	UnrealizedPnLPct *decimal.Decimal  `json:"unrealized_pnl_pct"`
	FirstTradeDate   string            `json:"first_trade_date,omitempty"`
	LastTradeDate    string            `json:"last_trade_date,omitempty"`
}
