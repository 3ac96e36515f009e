package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/NoahJunge/polymarkettracker/internal/ledger"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// priceCursor walks one market's ascending snapshots, exposing the latest one
// at or before the current replay day.
type priceCursor struct {
	snapshots []types.Snapshot
	next      int
	current   *types.Snapshot
}

func (c *priceCursor) advance(until time.Time) *types.Snapshot {
	for c.next < len(c.snapshots) && !c.snapshots[c.next].Timestamp.After(until) {
		c.current = &c.snapshots[c.next]
		c.next++
	}
	return c.current
}

// BuildCurve replays trades day by day from the first trade day through today.
// Each day is marked with the snapshots known at its end, so no point sees a
// later price. snapshots holds each traded market's history in ascending order.
func BuildCurve(trades []types.Trade, snapshots map[string][]types.Snapshot, today string) ([]types.EquityPoint, error) {
	if len(trades) == 0 {
		return []types.EquityPoint{}, nil
	}

	sorted := ledger.SortTrades(trades)
	start, err := time.ParseInLocation(types.DayLayout, sorted[0].Day(), time.UTC)
	if err != nil {
		return nil, err
	}
	end, err := time.ParseInLocation(types.DayLayout, today, time.UTC)
	if err != nil {
		return nil, types.InvalidInputf("today %q is not a date", today)
	}

	cursors := make(map[string]*priceCursor, len(snapshots))
	for marketID, snaps := range snapshots {
		cursors[marketID] = &priceCursor{snapshots: snaps}
	}

	book := ledger.NewBook()
	curve := make([]types.EquityPoint, 0, int(end.Sub(start).Hours()/24)+1)
	next := 0

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dayEnd := day.Add(24*time.Hour - time.Nanosecond)

		for next < len(sorted) && !sorted[next].CreatedAt.After(dayEnd) {
			err = book.Apply(sorted[next])
			if err != nil {
				return nil, err
			}
			next++
		}

		curve = append(curve, markDay(book, cursors, day.Format(types.DayLayout), dayEnd))
	}

	return curve, nil
}

func markDay(book *ledger.Book, cursors map[string]*priceCursor, date string, dayEnd time.Time) types.EquityPoint {
	marked := make(map[string]*types.Snapshot)
	unrealized := decimal.Zero
	value := decimal.Zero
	unpriced := 0

	for _, h := range book.Holdings() {
		snap, seen := marked[h.MarketID]
		if !seen {
			if c, ok := cursors[h.MarketID]; ok {
				snap = c.advance(dayEnd)
			}
			marked[h.MarketID] = snap
		}
		if snap == nil {
			unpriced++
			value = value.Add(h.CostBasis)
			continue
		}

		markValue := snap.PriceFor(h.Side).Mul(decimal.NewFromInt(h.NetQuantity))
		value = value.Add(markValue)
		unrealized = unrealized.Add(markValue.Sub(h.CostBasis))
	}

	realized := book.RealizedPnL()
	return types.EquityPoint{
		Date:               date,
		CumulativeInvested: book.CumulativeInvested(),
		TotalPnL:           realized.Add(unrealized),
		RealizedPnL:        realized,
		UnrealizedPnL:      unrealized,
		PortfolioValue:     value,
		TotalOpenTrades:    book.OpenCount(),
		TotalCloseTrades:   book.CloseCount(),
		UnpricedPositions:  unpriced,
	}
}

// FilterRange keeps points with from <= date <= to. Empty bounds are open.
func FilterRange(curve []types.EquityPoint, from, to string) []types.EquityPoint {
	filtered := make([]types.EquityPoint, 0, len(curve))
	for i := range curve {
		if from != "" && curve[i].Date < from {
			continue
		}
		if to != "" && curve[i].Date > to {
			continue
		}
		filtered = append(filtered, curve[i])
	}
	return filtered
}
