// Package ledger folds the append-only trade log into FIFO lot queues.
//
// A Book is rebuilt from scratch on every query. It never writes to the
// ledger; callers use CheckClose before appending a CLOSE so that an
// over-sized close is rejected without a ledger write.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
	"github.com/shopspring/decimal"
)

// CloseResult is the realized outcome of one CLOSE trade.
type CloseResult struct {
	TradeID     string          `json:"trade_id"`
	MarketID    string          `json:"market_id"`
	Side        types.Side      `json:"side"`
	Quantity    int64           `json:"quantity"`
	ClosePrice  decimal.Decimal `json:"close_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ClosedAt    time.Time       `json:"closed_at"`
}

// Holding is the open remainder of one (market, side) queue.
type Holding struct {
	MarketID      string          `json:"market_id"`
	Side          types.Side      `json:"side"`
	NetQuantity   int64           `json:"net_quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	LastTradeAt   time.Time       `json:"last_trade_at"`
	Lots          []types.Lot     `json:"lots"`
}

type queue struct {
	lots        []types.Lot
	realized    decimal.Decimal
	lastTradeAt time.Time
}

func (q *queue) net() int64 {
	var n int64
	for i := range q.lots {
		n += q.lots[i].Quantity
	}
	return n
}

func (q *queue) cost() decimal.Decimal {
	total := decimal.Zero
	for i := range q.lots {
		total = total.Add(q.lots[i].Price.Mul(decimal.NewFromInt(q.lots[i].Quantity)))
	}
	return total
}

// Book holds per (market, side) FIFO queues plus running ledger totals.
type Book struct {
	queues     map[types.PositionKey]*queue
	closes     []CloseResult
	invested   decimal.Decimal
	openCount  int
	closeCount int
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{
		queues:   make(map[types.PositionKey]*queue),
		invested: decimal.Zero,
	}
}

// SortTrades returns a copy ordered by created_at, ties broken by trade_id.
func SortTrades(trades []types.Trade) []types.Trade {
	sorted := make([]types.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})
	return sorted
}

// Reconstruct replays trades in ledger order.
func Reconstruct(trades []types.Trade) (*Book, error) {
	book := NewBook()
	for _, t := range SortTrades(trades) {
		err := book.Apply(t)
		if err != nil {
			return nil, fmt.Errorf("apply trade %s: %w", t.TradeID, err)
		}
	}
	return book, nil
}

func (b *Book) queueFor(key types.PositionKey) *queue {
	q, ok := b.queues[key]
	if !ok {
		q = &queue{realized: decimal.Zero}
		b.queues[key] = q
	}
	return q
}

// Apply folds a single trade into the book. Trades must arrive in ledger order.
func (b *Book) Apply(t types.Trade) error {
	key := types.PositionKey{MarketID: t.MarketID, Side: t.Side}

	switch t.Action {
	case types.ActionOpen:
		q := b.queueFor(key)
		q.lots = append(q.lots, types.Lot{
			TradeID:  t.TradeID,
			Quantity: t.Quantity,
			Price:    t.Price,
			OpenedAt: t.CreatedAt,
		})
		q.lastTradeAt = t.CreatedAt
		b.invested = b.invested.Add(t.Cost())
		b.openCount++
		return nil

	case types.ActionClose:
		err := b.CheckClose(t.MarketID, t.Side, t.Quantity)
		if err != nil {
			return err
		}
		q := b.queueFor(key)
		realized := consume(q, t.Quantity, t.Price)
		q.realized = q.realized.Add(realized)
		q.lastTradeAt = t.CreatedAt
		b.closes = append(b.closes, CloseResult{
			TradeID:     t.TradeID,
			MarketID:    t.MarketID,
			Side:        t.Side,
			Quantity:    t.Quantity,
			ClosePrice:  t.Price,
			RealizedPnL: realized,
			ClosedAt:    t.CreatedAt,
		})
		b.closeCount++
		return nil

	default:
		return types.InvalidInputf("unknown action %q", t.Action)
	}
}

// consume pops quantity from the front of the queue and returns the realized P&L.
func consume(q *queue, quantity int64, closePrice decimal.Decimal) decimal.Decimal {
	realized := decimal.Zero
	remaining := quantity
	for remaining > 0 && len(q.lots) > 0 {
		front := &q.lots[0]
		matched := front.Quantity
		if remaining < matched {
			matched = remaining
		}
		realized = realized.Add(closePrice.Sub(front.Price).Mul(decimal.NewFromInt(matched)))
		remaining -= matched
		front.Quantity -= matched
		if front.Quantity == 0 {
			q.lots = q.lots[1:]
		}
	}
	return realized
}

// CheckClose returns an InsufficientPositionError when quantity exceeds the open shares.
func (b *Book) CheckClose(marketID string, side types.Side, quantity int64) error {
	available := b.NetQuantity(marketID, side)
	if quantity > available {
		return &types.InsufficientPositionError{
			MarketID:  marketID,
			Side:      side,
			Requested: quantity,
			Available: available,
		}
	}
	return nil
}

// NetQuantity is sum(OPEN) - sum(CLOSE) for the pair.
func (b *Book) NetQuantity(marketID string, side types.Side) int64 {
	q, ok := b.queues[types.PositionKey{MarketID: marketID, Side: side}]
	if !ok {
		return 0
	}
	return q.net()
}

// Holding returns the state of one queue, including fully closed ones.
func (b *Book) Holding(marketID string, side types.Side) (Holding, bool) {
	key := types.PositionKey{MarketID: marketID, Side: side}
	q, ok := b.queues[key]
	if !ok {
		return Holding{}, false
	}
	return toHolding(key, q), true
}

func toHolding(key types.PositionKey, q *queue) Holding {
	net := q.net()
	cost := q.cost()
	avg := decimal.Zero
	if net > 0 {
		avg = cost.Div(decimal.NewFromInt(net))
	}
	lots := make([]types.Lot, len(q.lots))
	copy(lots, q.lots)
	return Holding{
		MarketID:      key.MarketID,
		Side:          key.Side,
		NetQuantity:   net,
		AvgEntryPrice: avg,
		CostBasis:     cost,
		RealizedPnL:   q.realized,
		LastTradeAt:   q.lastTradeAt,
		Lots:          lots,
	}
}

// Holdings returns every queue with open shares, ordered by market then side.
func (b *Book) Holdings() []Holding {
	holdings := make([]Holding, 0, len(b.queues))
	for _, key := range b.Keys() {
		q := b.queues[key]
		if q.net() == 0 {
			continue
		}
		holdings = append(holdings, toHolding(key, q))
	}
	return holdings
}

// Keys returns every (market, side) the ledger touched, ordered.
func (b *Book) Keys() []types.PositionKey {
	keys := make([]types.PositionKey, 0, len(b.queues))
	for key := range b.queues {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].MarketID != keys[j].MarketID {
			return keys[i].MarketID < keys[j].MarketID
		}
		return keys[i].Side < keys[j].Side
	})
	return keys
}

// RealizedPnL is the sum of every close's realized P&L.
func (b *Book) RealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, q := range b.queues {
		total = total.Add(q.realized)
	}
	return total
}

// RealizedByMarket sums realized P&L across both sides of each market.
func (b *Book) RealizedByMarket() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for key, q := range b.queues {
		cur, ok := out[key.MarketID]
		if !ok {
			cur = decimal.Zero
		}
		out[key.MarketID] = cur.Add(q.realized)
	}
	return out
}

// Closes returns the per-CLOSE results in ledger order.
func (b *Book) Closes() []CloseResult {
	out := make([]CloseResult, len(b.closes))
	copy(out, b.closes)
	return out
}

// CumulativeInvested is the running sum of OPEN costs.
func (b *Book) CumulativeInvested() decimal.Decimal {
	return b.invested
}

// OpenCount is the number of OPEN trades applied.
func (b *Book) OpenCount() int {
	return b.openCount
}

// CloseCount is the number of CLOSE trades applied.
func (b *Book) CloseCount() int {
	return b.closeCount
}
