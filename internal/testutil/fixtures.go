package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// D parses a decimal literal, panicking on bad input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// CreateTestMarket creates open market metadata.
func CreateTestMarket(id string, question string) types.Market {
	return types.Market{
		ID:       id,
		Question: question,
		Slug:     id + "-slug",
	}
}

// CreateTestSnapshot creates a snapshot whose NO price mirrors the YES price.
func CreateTestSnapshot(marketID string, at time.Time, yes string) types.Snapshot {
	yesPrice := D(yes)
	return types.Snapshot{
		MarketID:  marketID,
		Timestamp: at.UTC(),
		YesPrice:  yesPrice,
		NoPrice:   decimal.NewFromInt(1).Sub(yesPrice),
		Volume:    10000,
		Liquidity: 5000,
	}
}

// DailySnapshots creates one snapshot per day at 12:00 UTC starting from start's day.
func DailySnapshots(marketID string, start time.Time, yesPrices ...string) []types.Snapshot {
	day := time.Date(start.Year(), start.Month(), start.Day(), 12, 0, 0, 0, time.UTC)
	snapshots := make([]types.Snapshot, 0, len(yesPrices))
	for i, p := range yesPrices {
		snapshots = append(snapshots, CreateTestSnapshot(marketID, day.AddDate(0, 0, i), p))
	}
	return snapshots
}

// CreateTestTrade creates a ledger entry.
func CreateTestTrade(id, marketID string, side types.Side, action types.Action, quantity int64, price string, at time.Time) types.Trade {
	return types.Trade{
		TradeID:   id,
		MarketID:  marketID,
		Side:      side,
		Action:    action,
		Quantity:  quantity,
		Price:     D(price),
		CreatedAt: at.UTC(),
	}
}
