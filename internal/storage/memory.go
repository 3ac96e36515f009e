package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// MemoryStorage is an in-memory Storage used by tests and STORAGE_MODE=memory.
type MemoryStorage struct {
	mu            sync.Mutex
	snapshots     map[string][]types.Snapshot
	trades        []types.Trade
	tradeIDs      map[string]struct{}
	subscriptions map[string]types.Subscription
	markets       map[string]types.Market
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		snapshots:     make(map[string][]types.Snapshot),
		tradeIDs:      make(map[string]struct{}),
		subscriptions: make(map[string]types.Subscription),
		markets:       make(map[string]types.Market),
	}
}

// Ping always succeeds.
func (m *MemoryStorage) Ping(context.Context) error {
	return nil
}

// Close is a no-op for memory storage.
func (m *MemoryStorage) Close() error {
	return nil
}

// AppendSnapshots inserts snapshots not already stored for their (market, timestamp).
func (m *MemoryStorage) AppendSnapshots(_ context.Context, snapshots []types.Snapshot) (int, error) {
	for i := range snapshots {
		if err := snapshots[i].Validate(); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	touched := make(map[string]struct{})
	for _, snap := range snapshots {
		snap.Timestamp = snap.Timestamp.UTC()
		if m.hasSnapshot(snap.MarketID, snap.Timestamp) {
			continue
		}
		m.snapshots[snap.MarketID] = append(m.snapshots[snap.MarketID], snap)
		touched[snap.MarketID] = struct{}{}
		inserted++
	}
	for marketID := range touched {
		list := m.snapshots[marketID]
		sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	}
	return inserted, nil
}

func (m *MemoryStorage) hasSnapshot(marketID string, ts time.Time) bool {
	for _, existing := range m.snapshots[marketID] {
		if existing.Timestamp.Equal(ts) {
			return true
		}
	}
	return false
}

// ReadSnapshots returns a market's snapshots in [from, to], oldest first.
func (m *MemoryStorage) ReadSnapshots(_ context.Context, marketID string, from, to time.Time) ([]types.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []types.Snapshot
	for _, snap := range m.snapshots[marketID] {
		if !from.IsZero() && snap.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && snap.Timestamp.After(to) {
			continue
		}
		result = append(result, snap)
	}
	return result, nil
}

// LatestSnapshot returns the newest snapshot at or before asOf, or nil.
func (m *MemoryStorage) LatestSnapshot(_ context.Context, marketID string, asOf time.Time) (*types.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.snapshots[marketID]
	for i := len(list) - 1; i >= 0; i-- {
		if asOf.IsZero() || !list[i].Timestamp.After(asOf) {
			snap := list[i]
			return &snap, nil
		}
	}
	return nil, nil
}

// AppendTrade appends a trade, rejecting repeated trade ids.
func (m *MemoryStorage) AppendTrade(_ context.Context, trade types.Trade) error {
	if err := trade.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendTradeLocked(trade)
}

func (m *MemoryStorage) appendTradeLocked(trade types.Trade) error {
	if _, exists := m.tradeIDs[trade.TradeID]; exists {
		return fmt.Errorf("insert trade %s: %w", trade.TradeID, types.ErrDuplicateTrade)
	}
	m.tradeIDs[trade.TradeID] = struct{}{}
	m.trades = append(m.trades, trade)
	return nil
}

// ReadTrades returns matching trades ordered by created_at, then trade_id.
func (m *MemoryStorage) ReadTrades(_ context.Context, filter types.TradeFilter) ([]types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]types.Trade, 0, len(m.trades))
	for _, t := range m.trades {
		if filter.MarketID != "" && t.MarketID != filter.MarketID {
			continue
		}
		if filter.DCAID != "" && (!t.IsDCA() || t.DCA.DCAID != filter.DCAID) {
			continue
		}
		if filter.DCAOnly && !t.IsDCA() {
			continue
		}
		result = append(result, t)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].TradeID < result[j].TradeID
	})
	return result, nil
}

// LedgerVersion is the number of trades appended so far.
func (m *MemoryStorage) LedgerVersion(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.trades)), nil
}

// WriteSubscription replaces a subscription.
func (m *MemoryStorage) WriteSubscription(_ context.Context, sub types.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.DCAID] = sub
	return nil
}

// GetSubscription returns a copy of one subscription.
func (m *MemoryStorage) GetSubscription(_ context.Context, dcaID string) (*types.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[dcaID]
	if !ok {
		return nil, fmt.Errorf("get subscription %s: %w", dcaID, types.ErrSubscriptionNotFound)
	}
	return &sub, nil
}

// ReadSubscriptions lists subscriptions newest first.
func (m *MemoryStorage) ReadSubscriptions(_ context.Context, marketID string) ([]types.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]types.Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if marketID != "" && sub.MarketID != marketID {
			continue
		}
		result = append(result, sub)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].DCAID < result[j].DCAID
	})
	return result, nil
}

// RecordBackfill stores the subscription and its trades, or nothing on a duplicate trade id.
func (m *MemoryStorage) RecordBackfill(_ context.Context, sub types.Subscription, trades []types.Trade) error {
	for i := range trades {
		if err := trades[i].Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		_, dup := m.tradeIDs[t.TradeID]
		_, dupBatch := seen[t.TradeID]
		if dup || dupBatch {
			return fmt.Errorf("insert trade %s: %w", t.TradeID, types.ErrDuplicateTrade)
		}
		seen[t.TradeID] = struct{}{}
	}
	for _, t := range trades {
		_ = m.appendTradeLocked(t)
	}
	m.subscriptions[sub.DCAID] = sub
	return nil
}

// RecordDailyExecution appends trade and advances last_executed_date under the store lock.
func (m *MemoryStorage) RecordDailyExecution(_ context.Context, dcaID string, day string, trade types.Trade) (bool, error) {
	if err := trade.Validate(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[dcaID]
	if !ok || sub.State != types.StateActive {
		return false, nil
	}
	if sub.LastExecutedDate != "" && sub.LastExecutedDate >= day {
		return false, nil
	}

	err := m.appendTradeLocked(trade)
	if err != nil {
		return false, err
	}
	sub.LastExecutedDate = day
	sub.TotalTradesPlaced++
	m.subscriptions[dcaID] = sub
	return true, nil
}

// SetSubscriptionState changes only the state, and only when it is currently from.
func (m *MemoryStorage) SetSubscriptionState(_ context.Context, dcaID string, from, to types.SubscriptionState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[dcaID]
	if !ok || sub.State != from {
		return false, nil
	}
	sub.State = to
	m.subscriptions[dcaID] = sub
	return true, nil
}

// UpsertMarket replaces market metadata.
func (m *MemoryStorage) UpsertMarket(_ context.Context, market types.Market) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets[market.ID] = market
	return nil
}

// GetMarkets returns the known markets among ids.
func (m *MemoryStorage) GetMarkets(_ context.Context, ids []string) (map[string]types.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]types.Market, len(ids))
	for _, id := range ids {
		if market, ok := m.markets[id]; ok {
			result[id] = market
		}
	}
	return result, nil
}

// IsMarketClosed prefers market metadata over the newest snapshot's flag.
func (m *MemoryStorage) IsMarketClosed(ctx context.Context, marketID string) (bool, error) {
	m.mu.Lock()
	market, ok := m.markets[marketID]
	m.mu.Unlock()
	if ok {
		return market.Closed, nil
	}

	snap, err := m.LatestSnapshot(ctx, marketID, time.Time{})
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, &types.UnknownMarketError{MarketID: marketID}
	}
	return snap.MarketClosed, nil
}
