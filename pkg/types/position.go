package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is an unmatched slice of an OPEN trade.
type Lot struct {
	TradeID  string          `json:"trade_id"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	OpenedAt time.Time       `json:"opened_at"`
}

// PositionKey identifies a FIFO queue.
type PositionKey struct {
	MarketID string
	Side     Side
}

// Position is an open holding marked to market.
//
// When no snapshot exists at or before the mark time PriceKnown is false and
// every price-dependent field is nil.
type Position struct {
	MarketID      string          `json:"market_id"`
	Question      string          `json:"question,omitempty"`
	Side          Side            `json:"side"`
	NetQuantity   int64           `json:"net_quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	LastTradeDate string          `json:"last_trade_date"`
	Closed        bool            `json:"closed"`

	PriceKnown       bool             `json:"price_known"`
	PriceAsOf        *time.Time       `json:"price_as_of,omitempty"`
	CurrentPrice     *decimal.Decimal `json:"current_price"`
	MarketValue      *decimal.Decimal `json:"market_value"`
	UnrealizedPnL    *decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPct *decimal.Decimal `json:"unrealized_pnl_pct"`
}

// PortfolioSummary aggregates open positions and the realized ledger total.
type PortfolioSummary struct {
	TotalEquity           decimal.Decimal `json:"total_equity"`
	TotalCostBasis        decimal.Decimal `json:"total_cost_basis"`
	TotalUnrealizedPnL    decimal.Decimal `json:"total_unrealized_pnl"`
	TotalRealizedPnL      decimal.Decimal `json:"total_realized_pnl"`
	OpenPositionCount     int             `json:"open_position_count"`
	UnpricedPositionCount int             `json:"unpriced_position_count"`
	TotalTrades           int             `json:"total_trades"`
}
