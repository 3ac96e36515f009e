package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is the direction of a ledger entry.
type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)

// NewTradeID returns a time-ordered id. Trades sharing a timestamp replay in
// id order, so ids minted later must sort later.
func NewTradeID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// DCATag marks a trade as placed by a DCA subscription.
type DCATag struct {
	DCAID string `json:"dca_id"`
}

// Trade is an immutable ledger entry.
type Trade struct {
	TradeID    string          `json:"trade_id"`
	MarketID   string          `json:"market_id"`
	Side       Side            `json:"side"`
	Action     Action          `json:"action"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	CreatedAt  time.Time       `json:"created_at"`
	SnapshotTS *time.Time      `json:"snapshot_ts,omitempty"`
	DCA        *DCATag         `json:"dca,omitempty"`

	// Question is filled on listing; it is not part of the ledger record.
	Question string `json:"question,omitempty"`
}

// Cost is quantity × price.
func (t *Trade) Cost() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// IsDCA reports whether the trade belongs to a DCA subscription.
func (t *Trade) IsDCA() bool {
	return t.DCA != nil && t.DCA.DCAID != ""
}

// Day returns the UTC calendar day the trade was created on.
func (t *Trade) Day() string {
	return DayOf(t.CreatedAt)
}

// Validate checks the invariants every ledger entry must satisfy.
func (t *Trade) Validate() error {
	if t.TradeID == "" {
		return InvalidInputf("trade_id is empty")
	}
	if t.MarketID == "" {
		return InvalidInputf("market_id is empty")
	}
	if t.Side != SideYes && t.Side != SideNo {
		return InvalidInputf("side must be YES or NO, got %q", t.Side)
	}
	if t.Action != ActionOpen && t.Action != ActionClose {
		return InvalidInputf("action must be OPEN or CLOSE, got %q", t.Action)
	}
	if t.Quantity <= 0 {
		return InvalidInputf("quantity must be positive, got %d", t.Quantity)
	}
	if t.Price.IsNegative() || t.Price.GreaterThan(decimal.NewFromInt(1)) {
		return InvalidInputf("price %s outside [0,1]", t.Price)
	}
	return nil
}

// TradeFilter narrows ledger reads.
type TradeFilter struct {
	MarketID string
	DCAID    string
	DCAOnly  bool
}
