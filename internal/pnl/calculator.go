// Package pnl marks reconstructed holdings to market.
package pnl

import (
	"context"
	"fmt"
	"time"

	"github.com/NoahJunge/polymarkettracker/internal/ledger"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PriceSource returns the latest snapshot at or before asOf, or nil if none exists.
type PriceSource interface {
	LatestSnapshot(ctx context.Context, marketID string, asOf time.Time) (*types.Snapshot, error)
}

// Calculator combines holdings with snapshot prices.
type Calculator struct {
	prices PriceSource
}

// NewCalculator creates a calculator reading prices from src.
func NewCalculator(src PriceSource) *Calculator {
	return &Calculator{prices: src}
}

// Positions marks every open holding in the book, optionally restricted to one market.
func (c *Calculator) Positions(ctx context.Context, book *ledger.Book, marketID string, asOf time.Time) ([]types.Position, error) {
	holdings := book.Holdings()
	snapshots := make(map[string]*types.Snapshot)
	positions := make([]types.Position, 0, len(holdings))

	for _, h := range holdings {
		if marketID != "" && h.MarketID != marketID {
			continue
		}

		snap, seen := snapshots[h.MarketID]
		if !seen {
			var err error
			snap, err = c.prices.LatestSnapshot(ctx, h.MarketID, asOf)
			if err != nil {
				return nil, fmt.Errorf("latest snapshot for %s: %w", h.MarketID, err)
			}
			snapshots[h.MarketID] = snap
		}

		positions = append(positions, Mark(h, snap))
	}

	return positions, nil
}

// Mark builds a Position from a holding. A nil snapshot leaves the price fields unknown.
func Mark(h ledger.Holding, snap *types.Snapshot) types.Position {
	pos := types.Position{
		MarketID:      h.MarketID,
		Side:          h.Side,
		NetQuantity:   h.NetQuantity,
		AvgEntryPrice: h.AvgEntryPrice,
		CostBasis:     h.CostBasis,
		RealizedPnL:   h.RealizedPnL,
	}
	if !h.LastTradeAt.IsZero() {
		pos.LastTradeDate = types.DayOf(h.LastTradeAt)
	}
	if snap == nil {
		return pos
	}

	price := snap.PriceFor(h.Side)
	value, unrealized, pct := Value(h.NetQuantity, h.CostBasis, price)
	asOf := snap.Timestamp

	pos.PriceKnown = true
	pos.PriceAsOf = &asOf
	pos.CurrentPrice = &price
	pos.MarketValue = &value
	pos.UnrealizedPnL = &unrealized
	pos.UnrealizedPnLPct = &pct
	return pos
}

// Value returns market value, unrealized P&L and unrealized percent.
// The percent is zero when the cost basis is zero.
func Value(quantity int64, costBasis, price decimal.Decimal) (value, unrealized, pct decimal.Decimal) {
	value = price.Mul(decimal.NewFromInt(quantity))
	unrealized = value.Sub(costBasis)
	pct = decimal.Zero
	if !costBasis.IsZero() {
		pct = unrealized.Div(costBasis).Mul(hundred).Round(4)
	}
	return value, unrealized, pct
}

// Summarize aggregates positions. Unpriced positions count toward cost basis
// and the open count but never toward equity or unrealized P&L.
func Summarize(positions []types.Position, realized decimal.Decimal, totalTrades int) types.PortfolioSummary {
	summary := types.PortfolioSummary{
		TotalEquity:        decimal.Zero,
		TotalCostBasis:     decimal.Zero,
		TotalUnrealizedPnL: decimal.Zero,
		TotalRealizedPnL:   realized,
		OpenPositionCount:  len(positions),
		TotalTrades:        totalTrades,
	}

	for i := range positions {
		p := &positions[i]
		summary.TotalCostBasis = summary.TotalCostBasis.Add(p.CostBasis)
		if !p.PriceKnown {
			summary.UnpricedPositionCount++
			continue
		}
		summary.TotalEquity = summary.TotalEquity.Add(*p.MarketValue)
		summary.TotalUnrealizedPnL = summary.TotalUnrealizedPnL.Add(*p.UnrealizedPnL)
	}

	return summary
}
