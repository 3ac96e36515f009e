package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/storage"
	"github.com/NoahJunge/polymarkettracker/internal/testutil"
	"github.com/NoahJunge/polymarkettracker/pkg/cache"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

var (
	t0  = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	now = t0.Add(72 * time.Hour)
)

func at(d time.Duration) *time.Time {
	ts := t0.Add(d)
	return &ts
}

func newService(t *testing.T, c cache.Cache) (*Service, *storage.MemoryStorage, *testutil.RecordingNotifier) {
	t.Helper()
	store := storage.NewMemoryStorage()
	_, err := store.AppendSnapshots(context.Background(), []types.Snapshot{
		testutil.CreateTestSnapshot("m1", t0, "0.40"),
		testutil.CreateTestSnapshot("m1", t0.Add(time.Hour), "0.60"),
		testutil.CreateTestSnapshot("m1", t0.Add(2*time.Hour), "0.70"),
		testutil.CreateTestSnapshot("m1", t0.Add(48*time.Hour), "0.65"),
	})
	require.NoError(t, err)
	require.NoError(t, store.UpsertMarket(context.Background(), testutil.CreateTestMarket("m1", "Will it rain?")))

	notifier := &testutil.RecordingNotifier{}
	svc := New(&Config{
		Store:    store,
		Cache:    c,
		Notifier: notifier,
		Logger:   zap.NewNop(),
		Clock:    testutil.FixedClock(now),
	})
	return svc, store, notifier
}

func TestOpenTrade(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newService(t, nil)

	t.Run("priced-at-latest-snapshot-at-or-before", func(t *testing.T) {
		trade, err := svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 10, At: at(90 * time.Minute)})
		require.NoError(t, err)
		assert.True(t, trade.Price.Equal(testutil.D("0.60")))
		require.NotNil(t, trade.SnapshotTS)
		assert.True(t, trade.SnapshotTS.Equal(t0.Add(time.Hour)))
		assert.NotEmpty(t, trade.TradeID)
	})

	t.Run("no-side-uses-no-price", func(t *testing.T) {
		trade, err := svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideNo, Quantity: 1})
		require.NoError(t, err)
		assert.True(t, trade.Price.Equal(testutil.D("0.35")))
		assert.True(t, trade.CreatedAt.Equal(now))
	})

	t.Run("before-first-snapshot", func(t *testing.T) {
		_, err := svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 1, At: at(-time.Hour)})
		assert.ErrorIs(t, err, types.ErrStalePriceUnavailable)
	})

	t.Run("unknown-market", func(t *testing.T) {
		_, err := svc.OpenTrade(ctx, OpenRequest{MarketID: "nope", Side: types.SideYes, Quantity: 1})
		assert.ErrorIs(t, err, types.ErrUnknownMarket)
	})

	t.Run("invalid-input", func(t *testing.T) {
		_, err := svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 0})
		assert.ErrorIs(t, err, types.ErrInvalidInput)

		_, err = svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: "MAYBE", Quantity: 1})
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	assert.Len(t, notifier.Trades(), 2)
}

func TestCloseTrade_PartialCloseAcrossLots(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, nil)

	_, err := svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 10, At: at(0)})
	require.NoError(t, err)
	_, err = svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 10, At: at(time.Hour)})
	require.NoError(t, err)
	closed, err := svc.CloseTrade(ctx, CloseRequest{MarketID: "m1", Side: types.SideYes, Quantity: 15, At: at(2 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, closed.Price.Equal(testutil.D("0.70")))

	positions, err := svc.GetPositions(ctx, "")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, int64(5), p.NetQuantity)
	assert.True(t, p.AvgEntryPrice.Equal(testutil.D("0.60")))
	assert.Equal(t, "Will it rain?", p.Question)
	require.True(t, p.PriceKnown)
	assert.True(t, p.CurrentPrice.Equal(testutil.D("0.65")))

	summary, err := svc.GetPortfolioSummary(ctx)
	require.NoError(t, err)
	assert.True(t, summary.TotalRealizedPnL.Equal(testutil.D("3.50")), summary.TotalRealizedPnL.String())
	assert.True(t, summary.TotalEquity.Equal(testutil.D("3.25")))
	assert.True(t, summary.TotalUnrealizedPnL.Equal(testutil.D("0.25")))
	assert.Equal(t, 1, summary.OpenPositionCount)
	assert.Equal(t, 3, summary.TotalTrades)
}

func TestCloseTrade_InsufficientPositionLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t, nil)

	_, err := svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 3, At: at(0)})
	require.NoError(t, err)

	_, err = svc.CloseTrade(ctx, CloseRequest{MarketID: "m1", Side: types.SideYes, Quantity: 5})
	require.ErrorIs(t, err, types.ErrInsufficientPosition)

	var ipe *types.InsufficientPositionError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, int64(3), ipe.Available)

	version, err := store.LedgerVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestCloseTrade_CloseAll(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, nil)

	_, err := svc.CloseTrade(ctx, CloseRequest{MarketID: "m1", Side: types.SideNo})
	assert.ErrorIs(t, err, types.ErrInsufficientPosition)

	_, err = svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: "no", Quantity: 4, At: at(0)})
	require.NoError(t, err)

	closed, err := svc.CloseTrade(ctx, CloseRequest{MarketID: "m1", Side: "no"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), closed.Quantity)
	assert.Equal(t, types.SideNo, closed.Side)

	summary, err := svc.GetPortfolioSummary(ctx)
	require.NoError(t, err)
	// Bought NO at 0.60, sold at 0.35.
	assert.True(t, summary.TotalRealizedPnL.Equal(testutil.D("-1")))
	assert.Equal(t, 0, summary.OpenPositionCount)
}

func TestCloseTrade_ConcurrentClosesCannotOversell(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t, nil)

	_, err := svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 5, At: at(0)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CloseTrade(ctx, CloseRequest{MarketID: "m1", Side: types.SideYes, Quantity: 3})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, types.ErrInsufficientPosition)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	version, err := store.LedgerVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestTrades_NewestFirstWithQuestion(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, nil)

	first, err := svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 1, At: at(0)})
	require.NoError(t, err)
	second, err := svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 1, At: at(time.Hour)})
	require.NoError(t, err)

	trades, err := svc.Trades(ctx, types.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, second.TradeID, trades[0].TradeID)
	assert.Equal(t, first.TradeID, trades[1].TradeID)
	assert.Equal(t, "Will it rain?", trades[0].Question)
}

func TestBook_CacheFollowsLedgerVersion(t *testing.T) {
	ctx := context.Background()
	c, err := cache.NewRistrettoCache(cache.DefaultConfig("book-test", 100, zap.NewNop()))
	require.NoError(t, err)
	defer c.Close()

	svc, _, _ := newService(t, c)

	_, err = svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 2, At: at(0)})
	require.NoError(t, err)

	first, trades, err := svc.Book(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, trades)
	c.Wait()

	cached, _, err := svc.Book(ctx)
	require.NoError(t, err)
	assert.Same(t, first, cached)

	_, err = svc.OpenTrade(ctx, OpenRequest{MarketID: "m1", Side: types.SideYes, Quantity: 3, At: at(time.Hour)})
	require.NoError(t, err)

	fresh, trades, err := svc.Book(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, trades)
	assert.Equal(t, int64(5), fresh.NetQuantity("m1", types.SideYes))
}
