package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/storage"
	"github.com/NoahJunge/polymarkettracker/internal/testutil"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

func newService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	trades, snapshots := curveFixture()
	for i := range trades {
		require.NoError(t, store.AppendTrade(ctx, trades[i]))
	}
	_, err := store.AppendSnapshots(ctx, snapshots["m1"])
	require.NoError(t, err)

	return New(&Config{
		Store:  store,
		Logger: zap.NewNop(),
		Clock:  testutil.FixedClock(june1.Add(3*24*time.Hour + 8*time.Hour)),
		Bins:   5,
	})
}

func TestService_EquityCurve(t *testing.T) {
	svc := newService(t)

	result, err := svc.EquityCurve(context.Background(), "2025-06-02", "2025-06-03")
	require.NoError(t, err)
	require.Len(t, result.Curve, 2)
	assert.Equal(t, "2025-06-02", result.Curve[0].Date)

	// Stats cover the full history, not the filtered window.
	assert.Equal(t, 1, result.Stats.TotalWins)
	assert.True(t, result.Stats.MaxDrawdown.IsZero())
	require.NotNil(t, result.Stats.Regression)
	assert.Equal(t, 4, result.Stats.Regression.Points)

	_, err = svc.EquityCurve(context.Background(), "June 2", "")
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = svc.EquityCurve(context.Background(), "2025-06-03", "2025-06-02")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestService_Stats(t *testing.T) {
	stats, err := newService(t).Stats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats.WinRate)
	assert.Equal(t, 1.0, *stats.WinRate)
	assert.Nil(t, stats.ProfitFactor)
	require.NotNil(t, stats.SharpeRatio)
}

func TestService_Contributions(t *testing.T) {
	contributions, err := newService(t).Contributions(context.Background())
	require.NoError(t, err)

	// m1: realized 0.6 plus 6 × (0.60 − 0.40); m2 has no price yet.
	require.Contains(t, contributions, "m1")
	require.Contains(t, contributions, "m2")
	assert.InDelta(t, 1.8, contributions["m1"], 1e-9)
	assert.Zero(t, contributions["m2"])
}

func TestService_MonteCarlo(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	result, err := svc.MonteCarlo(ctx, MonteCarloRequest{Iterations: 200, Percentages: []float64{100, 0.5}, Seed: seed(3)})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Markets)
	assert.InDelta(t, 1.8, result.TotalPnL, 1e-9)
	require.Len(t, result.Runs, 2)
	assert.Equal(t, 1.0, result.Runs[0].Percentage)
	assert.InDelta(t, 1.8, result.Runs[0].Mean, 1e-9)
	assert.Equal(t, 1, result.Runs[1].SampleSize)

	t.Run("default-percentages", func(t *testing.T) {
		result, err := svc.MonteCarlo(ctx, MonteCarloRequest{Iterations: 10})
		require.NoError(t, err)
		require.Len(t, result.Runs, len(DefaultPercentages))
	})

	t.Run("iterations-bounded", func(t *testing.T) {
		_, err := svc.MonteCarlo(ctx, MonteCarloRequest{Iterations: 0})
		assert.ErrorIs(t, err, types.ErrInvalidInput)
		_, err = svc.MonteCarlo(ctx, MonteCarloRequest{Iterations: 1_000_000})
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("bad-percentage", func(t *testing.T) {
		_, err := svc.MonteCarlo(ctx, MonteCarloRequest{Iterations: 10, Percentages: []float64{150}})
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("empty-ledger", func(t *testing.T) {
		empty := New(&Config{Store: storage.NewMemoryStorage(), Logger: zap.NewNop()})
		_, err := empty.MonteCarlo(ctx, MonteCarloRequest{Iterations: 10})
		assert.ErrorIs(t, err, types.ErrInsufficientData)
	})
}
