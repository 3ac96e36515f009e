package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/storage"
	"github.com/NoahJunge/polymarkettracker/internal/testutil"
	"github.com/NoahJunge/polymarkettracker/pkg/config"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

func testConfig() *config.Config {
	return &config.Config{
		LogLevel:                "info",
		HTTPPort:                "0",
		ShutdownTimeout:         5 * time.Second,
		StorageMode:             config.StorageMemory,
		RedisSnapshotTTL:        time.Minute,
		PositionCacheEnabled:    true,
		PositionCacheMaxItems:   16,
		MarketStatusSource:      config.StatusSourceStore,
		MarketStatusCacheTTL:    time.Minute,
		DCACron:                 "0 30 0 * * *",
		DCAReferenceRule:        "close",
		MonteCarloMaxIterations: 1000,
		MonteCarloBins:          10,
		MonteCarloTimeout:       5 * time.Second,
	}
}

func TestNew_MemoryStorage(t *testing.T) {
	a, err := New(testConfig(), zap.NewNop(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &storage.MemoryStorage{}, a.Storage())
	assert.NotNil(t, a.Trading())
	assert.NotNil(t, a.DCA())
	assert.NotNil(t, a.Analytics())
	assert.Len(t, a.caches, 1, "position cache only")

	statuses := a.Scheduler().Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, DCADailyJob, statuses[0].Name)
}

func TestNew_InvalidReferenceRule(t *testing.T) {
	cfg := testConfig()
	cfg.DCAReferenceRule = "midday"

	_, err := New(cfg, zap.NewNop(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestNew_InvalidSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.DCACron = "every day"

	_, err := New(cfg, zap.NewNop(), nil)
	require.Error(t, err)
}

func TestNew_RedisSnapshotCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()

	a, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &storage.RedisSnapshotCache{}, a.Storage())
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.RedisAddr = addr

	_, err = New(cfg, zap.NewNop(), nil)
	require.Error(t, err)
}

func TestNew_GammaStatusSource(t *testing.T) {
	cfg := testConfig()
	cfg.MarketStatusSource = config.StatusSourceGamma
	cfg.PolymarketGammaURL = "http://127.0.0.1:1"

	a, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Len(t, a.caches, 2)
}

func TestApp_DailyJobEndToEnd(t *testing.T) {
	now := time.Date(2025, 5, 3, 0, 30, 0, 0, time.UTC)
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	store := storage.NewMemoryStorage()
	_, err := store.AppendSnapshots(context.Background(), testutil.DailySnapshots("m1", start, "0.30", "0.40"))
	require.NoError(t, err)

	a, err := New(testConfig(), zap.NewNop(), &Options{
		Storage: store,
		Clock:   testutil.FixedClock(now),
	})
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	result, err := a.DCA().Subscribe(ctx, "m1", types.SideYes, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TradesBackfilled)

	// Next day's price arrives, then the scheduled job runs.
	_, err = store.AppendSnapshots(ctx, []types.Snapshot{
		testutil.CreateTestSnapshot("m1", time.Date(2025, 5, 3, 0, 10, 0, 0, time.UTC), "0.50"),
	})
	require.NoError(t, err)

	run, err := a.Scheduler().RunNow(ctx, DCADailyJob)
	require.NoError(t, err)
	assert.Contains(t, run.Result, "placed=1")

	summary, err := a.Trading().GetPortfolioSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalTrades)
	assert.True(t, summary.TotalCostBasis.Equal(testutil.D("6")), summary.TotalCostBasis.String())
}

func TestApp_ReadyBeforeRun(t *testing.T) {
	a, err := New(testConfig(), zap.NewNop(), nil)
	require.NoError(t, err)
	defer a.Close()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	a.HTTPServer().Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	a.healthChecker.SetReady(true)
	rec = httptest.NewRecorder()
	a.HTTPServer().Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a, err := New(testConfig(), zap.NewNop(), nil)
	require.NoError(t, err)

	a.Close()
	a.Close()
}
