package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

var day0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func snapshotAt(market string, at time.Time, yes string) types.Snapshot {
	y := d(yes)
	return types.Snapshot{MarketID: market, Timestamp: at, YesPrice: y, NoPrice: decimal.NewFromInt(1).Sub(y), Volume: 1000, Liquidity: 250.5}
}

func tradeAt(id, market string, action types.Action, qty int64, price string, at time.Time) types.Trade {
	return types.Trade{TradeID: id, MarketID: market, Side: types.SideYes, Action: action, Quantity: qty, Price: d(price), CreatedAt: at}
}

func newSQLite(t *testing.T) Storage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemory(t *testing.T) Storage {
	t.Helper()
	return NewMemoryStorage()
}

// backends runs the same behavioural checks against every embedded backend.
var backends = map[string]func(t *testing.T) Storage{
	"sqlite": newSQLite,
	"memory": newMemory,
}

func TestStorage_Snapshots(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			inserted, err := s.AppendSnapshots(ctx, []types.Snapshot{
				snapshotAt("m1", day0.Add(2*time.Hour), "0.55"),
				snapshotAt("m1", day0, "0.50"),
				snapshotAt("m2", day0, "0.10"),
			})
			require.NoError(t, err)
			assert.Equal(t, 3, inserted)

			// Same (market, timestamp) is ignored.
			inserted, err = s.AppendSnapshots(ctx, []types.Snapshot{snapshotAt("m1", day0, "0.99")})
			require.NoError(t, err)
			assert.Equal(t, 0, inserted)

			snaps, err := s.ReadSnapshots(ctx, "m1", time.Time{}, time.Time{})
			require.NoError(t, err)
			require.Len(t, snaps, 2)
			assert.True(t, snaps[0].Timestamp.Equal(day0))
			assert.True(t, snaps[0].YesPrice.Equal(d("0.50")))
			assert.True(t, snaps[0].NoPrice.Equal(d("0.50")))
			assert.Equal(t, 250.5, snaps[0].Liquidity)
			assert.True(t, snaps[1].Timestamp.Equal(day0.Add(2*time.Hour)))

			bounded, err := s.ReadSnapshots(ctx, "m1", day0.Add(time.Hour), time.Time{})
			require.NoError(t, err)
			assert.Len(t, bounded, 1)

			latest, err := s.LatestSnapshot(ctx, "m1", time.Time{})
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.True(t, latest.YesPrice.Equal(d("0.55")))

			asOf, err := s.LatestSnapshot(ctx, "m1", day0.Add(time.Hour))
			require.NoError(t, err)
			require.NotNil(t, asOf)
			assert.True(t, asOf.YesPrice.Equal(d("0.50")))

			none, err := s.LatestSnapshot(ctx, "m1", day0.Add(-time.Hour))
			require.NoError(t, err)
			assert.Nil(t, none)
		})
	}
}

func TestStorage_SnapshotValidation(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			bad := snapshotAt("m1", day0, "0.5")
			bad.YesPrice = d("1.5")
			_, err := newStore(t).AppendSnapshots(context.Background(), []types.Snapshot{bad})
			assert.ErrorIs(t, err, types.ErrInvalidInput)
		})
	}
}

func TestStorage_Trades(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			snapTS := day0.Add(-time.Minute)
			withSnap := tradeAt("b", "m1", types.ActionOpen, 10, "0.40", day0)
			withSnap.SnapshotTS = &snapTS
			dcaTrade := tradeAt("c", "m2", types.ActionOpen, 5, "0.25", day0.Add(time.Hour))
			dcaTrade.DCA = &types.DCATag{DCAID: "dca-1"}

			require.NoError(t, s.AppendTrade(ctx, dcaTrade))
			require.NoError(t, s.AppendTrade(ctx, withSnap))
			require.NoError(t, s.AppendTrade(ctx, tradeAt("a", "m1", types.ActionClose, 4, "0.45", day0)))

			err := s.AppendTrade(ctx, tradeAt("a", "m1", types.ActionOpen, 1, "0.45", day0))
			assert.ErrorIs(t, err, types.ErrDuplicateTrade)

			all, err := s.ReadTrades(ctx, types.TradeFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			// Same timestamp orders by trade_id.
			assert.Equal(t, "a", all[0].TradeID)
			assert.Equal(t, "b", all[1].TradeID)
			assert.Equal(t, "c", all[2].TradeID)

			require.NotNil(t, all[1].SnapshotTS)
			assert.True(t, all[1].SnapshotTS.Equal(snapTS))
			assert.True(t, all[1].Price.Equal(d("0.4")))
			assert.Equal(t, types.ActionOpen, all[1].Action)
			assert.Nil(t, all[0].DCA)

			byMarket, err := s.ReadTrades(ctx, types.TradeFilter{MarketID: "m1"})
			require.NoError(t, err)
			assert.Len(t, byMarket, 2)

			dcaOnly, err := s.ReadTrades(ctx, types.TradeFilter{DCAOnly: true})
			require.NoError(t, err)
			require.Len(t, dcaOnly, 1)
			assert.Equal(t, "dca-1", dcaOnly[0].DCA.DCAID)

			byDCA, err := s.ReadTrades(ctx, types.TradeFilter{DCAID: "dca-1"})
			require.NoError(t, err)
			assert.Len(t, byDCA, 1)

			version, err := s.LedgerVersion(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(3), version)
		})
	}
}

func subscription(id string, created time.Time) types.Subscription {
	return types.Subscription{
		DCAID:          id,
		MarketID:       "m1",
		Side:           types.SideYes,
		QuantityPerDay: 10,
		CreatedAt:      created,
		State:          types.StateActive,
	}
}

func TestStorage_Subscriptions(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			_, err := s.GetSubscription(ctx, "missing")
			assert.ErrorIs(t, err, types.ErrSubscriptionNotFound)

			older := subscription("dca-1", day0)
			newer := subscription("dca-2", day0.Add(time.Hour))
			newer.MarketID = "m2"
			require.NoError(t, s.WriteSubscription(ctx, older))
			require.NoError(t, s.WriteSubscription(ctx, newer))

			older.State = types.StateCancelled
			older.LastExecutedDate = "2025-03-01"
			require.NoError(t, s.WriteSubscription(ctx, older))

			got, err := s.GetSubscription(ctx, "dca-1")
			require.NoError(t, err)
			assert.Equal(t, types.StateCancelled, got.State)
			assert.Equal(t, "2025-03-01", got.LastExecutedDate)
			assert.True(t, got.CreatedAt.Equal(day0))

			list, err := s.ReadSubscriptions(ctx, "")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "dca-2", list[0].DCAID)

			filtered, err := s.ReadSubscriptions(ctx, "m1")
			require.NoError(t, err)
			require.Len(t, filtered, 1)
			assert.Equal(t, "dca-1", filtered[0].DCAID)
		})
	}
}

func TestStorage_RecordBackfill(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			sub := subscription("dca-1", day0)
			sub.LastExecutedDate = "2025-03-02"
			sub.TotalTradesPlaced = 2
			trades := []types.Trade{
				tradeAt("bf-1", "m1", types.ActionOpen, 10, "0.5", day0),
				tradeAt("bf-2", "m1", types.ActionOpen, 10, "0.6", day0.Add(24*time.Hour)),
			}
			require.NoError(t, s.RecordBackfill(ctx, sub, trades))

			got, err := s.GetSubscription(ctx, "dca-1")
			require.NoError(t, err)
			assert.Equal(t, 2, got.TotalTradesPlaced)

			// A conflicting batch leaves nothing behind.
			err = s.RecordBackfill(ctx, subscription("dca-2", day0), []types.Trade{
				tradeAt("bf-3", "m1", types.ActionOpen, 1, "0.5", day0),
				tradeAt("bf-1", "m1", types.ActionOpen, 1, "0.5", day0),
			})
			assert.ErrorIs(t, err, types.ErrDuplicateTrade)

			_, err = s.GetSubscription(ctx, "dca-2")
			assert.ErrorIs(t, err, types.ErrSubscriptionNotFound)
			version, err := s.LedgerVersion(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), version)
		})
	}
}

func TestStorage_RecordDailyExecution(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			sub := subscription("dca-1", day0)
			sub.LastExecutedDate = "2025-03-01"
			require.NoError(t, s.WriteSubscription(ctx, sub))

			trade := tradeAt("d-1", "m1", types.ActionOpen, 10, "0.5", day0.Add(24*time.Hour))
			trade.DCA = &types.DCATag{DCAID: "dca-1"}

			applied, err := s.RecordDailyExecution(ctx, "dca-1", "2025-03-01", trade)
			require.NoError(t, err)
			assert.False(t, applied, "already executed that day")

			applied, err = s.RecordDailyExecution(ctx, "dca-1", "2025-03-02", trade)
			require.NoError(t, err)
			assert.True(t, applied)

			trade.TradeID = "d-2"
			applied, err = s.RecordDailyExecution(ctx, "dca-1", "2025-03-02", trade)
			require.NoError(t, err)
			assert.False(t, applied)

			got, err := s.GetSubscription(ctx, "dca-1")
			require.NoError(t, err)
			assert.Equal(t, "2025-03-02", got.LastExecutedDate)
			assert.Equal(t, 1, got.TotalTradesPlaced)

			got.State = types.StateCancelled
			require.NoError(t, s.WriteSubscription(ctx, *got))
			trade.TradeID = "d-3"
			applied, err = s.RecordDailyExecution(ctx, "dca-1", "2025-03-03", trade)
			require.NoError(t, err)
			assert.False(t, applied, "cancelled subscriptions never trade")

			trades, err := s.ReadTrades(ctx, types.TradeFilter{DCAID: "dca-1"})
			require.NoError(t, err)
			assert.Len(t, trades, 1)
		})
	}
}

func TestStorage_RecordDailyExecutionConcurrent(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			require.NoError(t, s.WriteSubscription(ctx, subscription("dca-1", day0)))

			const workers = 8
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				applied int
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					trade := tradeAt(fmt.Sprintf("race-%d", i), "m1", types.ActionOpen, 10, "0.5", day0)
					trade.DCA = &types.DCATag{DCAID: "dca-1"}
					ok, err := s.RecordDailyExecution(ctx, "dca-1", "2025-03-01", trade)
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						applied++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 1, applied)
			version, err := s.LedgerVersion(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), version)
		})
	}
}

func TestStorage_Markets(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			require.NoError(t, s.UpsertMarket(ctx, types.Market{ID: "m1", Question: "Will it rain?", Slug: "rain"}))
			require.NoError(t, s.UpsertMarket(ctx, types.Market{ID: "m1", Question: "Will it rain?", Slug: "rain", Closed: true}))

			markets, err := s.GetMarkets(ctx, []string{"m1", "m9"})
			require.NoError(t, err)
			require.Len(t, markets, 1)
			assert.Equal(t, "Will it rain?", markets["m1"].Question)

			closed, err := s.IsMarketClosed(ctx, "m1")
			require.NoError(t, err)
			assert.True(t, closed)

			// Falls back to the newest snapshot flag.
			snap := snapshotAt("m2", day0, "0.5")
			snap.MarketClosed = true
			_, err = s.AppendSnapshots(ctx, []types.Snapshot{snap})
			require.NoError(t, err)
			closed, err = s.IsMarketClosed(ctx, "m2")
			require.NoError(t, err)
			assert.True(t, closed)

			_, err = s.IsMarketClosed(ctx, "unknown")
			assert.ErrorIs(t, err, types.ErrUnknownMarket)
		})
	}
}

func TestStorage_Interface(t *testing.T) {
	var _ Storage = &SQLiteStorage{}
	var _ Storage = &PostgresStorage{}
	var _ Storage = NewMemoryStorage()
	var _ Storage = &RedisSnapshotCache{}
}

func TestStorage_SetSubscriptionState(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			require.NoError(t, s.RecordBackfill(ctx, subscription("dca-1", day0), nil))

			trade := tradeAt("d-1", "m1", types.ActionOpen, 10, "0.5", day0)
			trade.DCA = &types.DCATag{DCAID: "dca-1"}
			applied, err := s.RecordDailyExecution(ctx, "dca-1", "2025-03-01", trade)
			require.NoError(t, err)
			require.True(t, applied)

			applied, err = s.SetSubscriptionState(ctx, "dca-1", types.StateExhausted, types.StateCancelled)
			require.NoError(t, err)
			assert.False(t, applied, "state is not exhausted")

			applied, err = s.SetSubscriptionState(ctx, "dca-1", types.StateActive, types.StateCancelled)
			require.NoError(t, err)
			assert.True(t, applied)

			got, err := s.GetSubscription(ctx, "dca-1")
			require.NoError(t, err)
			assert.Equal(t, types.StateCancelled, got.State)
			assert.Equal(t, "2025-03-01", got.LastExecutedDate)
			assert.Equal(t, 1, got.TotalTradesPlaced)

			applied, err = s.SetSubscriptionState(ctx, "missing", types.StateActive, types.StateCancelled)
			require.NoError(t, err)
			assert.False(t, applied)
		})
	}
}
