// Package analytics derives the equity curve, portfolio statistics and
// Monte Carlo resampling from the trade ledger and price history.
//
// Every call replays the full ledger; nothing is cached between requests.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/ledger"
	"github.com/NoahJunge/polymarkettracker/internal/pnl"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// DefaultPercentages are the sample fractions used when a request names none.
var DefaultPercentages = []float64{0.7, 0.8, 0.9} //nolint:gochecknoglobals

// Store is the read side the analytics need.
type Store interface {
	ReadTrades(ctx context.Context, filter types.TradeFilter) ([]types.Trade, error)
	ReadSnapshots(ctx context.Context, marketID string, from, to time.Time) ([]types.Snapshot, error)
	LatestSnapshot(ctx context.Context, marketID string, asOf time.Time) (*types.Snapshot, error)
}

// Config holds analytics configuration.
type Config struct {
	Store         Store
	Logger        *zap.Logger
	Clock         func() time.Time
	MaxIterations int
	Bins          int
	Timeout       time.Duration // zero disables the Monte Carlo deadline
}

// Service computes portfolio analytics.
type Service struct {
	store         Store
	calc          *pnl.Calculator
	logger        *zap.Logger
	now           func() time.Time
	maxIterations int
	bins          int
	timeout       time.Duration
}

// New creates an analytics service.
func New(cfg *Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	bins := cfg.Bins
	if bins <= 0 {
		bins = 20
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 100000
	}
	return &Service{
		store:         cfg.Store,
		calc:          pnl.NewCalculator(cfg.Store),
		logger:        cfg.Logger,
		now:           clock,
		maxIterations: maxIterations,
		bins:          bins,
		timeout:       cfg.Timeout,
	}
}

// EquityCurve returns the daily curve, optionally limited to [from, to], with
// statistics computed over the whole history.
func (s *Service) EquityCurve(ctx context.Context, from, to string) (*types.EquityCurve, error) {
	for _, bound := range []string{from, to} {
		if bound == "" {
			continue
		}
		if _, err := time.ParseInLocation(types.DayLayout, bound, time.UTC); err != nil {
			return nil, types.InvalidInputf("date %q must be YYYY-MM-DD", bound)
		}
	}
	if from != "" && to != "" && from > to {
		return nil, types.InvalidInputf("range start %s is after end %s", from, to)
	}

	start := time.Now()
	curve, trades, err := s.curve(ctx)
	if err != nil {
		return nil, err
	}

	book, err := ledger.Reconstruct(trades)
	if err != nil {
		return nil, fmt.Errorf("reconstruct ledger: %w", err)
	}
	stats := ComputeStats(book.Closes(), curve)

	CurveDurationSeconds.Observe(time.Since(start).Seconds())
	s.logger.Debug("equity-curve-computed",
		zap.Int("points", len(curve)),
		zap.Int("trades", len(trades)),
		zap.Duration("duration", time.Since(start)))

	return &types.EquityCurve{Curve: FilterRange(curve, from, to), Stats: stats}, nil
}

// Stats returns the portfolio statistics over the whole history.
func (s *Service) Stats(ctx context.Context) (*types.PortfolioStats, error) {
	result, err := s.EquityCurve(ctx, "", "")
	if err != nil {
		return nil, err
	}
	return &result.Stats, nil
}

func (s *Service) curve(ctx context.Context) ([]types.EquityPoint, []types.Trade, error) {
	trades, err := s.store.ReadTrades(ctx, types.TradeFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("read trades: %w", err)
	}

	now := s.now()
	snapshots := make(map[string][]types.Snapshot)
	for i := range trades {
		marketID := trades[i].MarketID
		if _, ok := snapshots[marketID]; ok {
			continue
		}
		snaps, err := s.store.ReadSnapshots(ctx, marketID, time.Time{}, now)
		if err != nil {
			return nil, nil, fmt.Errorf("read snapshots for %s: %w", marketID, err)
		}
		snapshots[marketID] = snaps
	}

	curve, err := BuildCurve(trades, snapshots, types.DayOf(now))
	if err != nil {
		return nil, nil, fmt.Errorf("build equity curve: %w", err)
	}
	return curve, trades, nil
}

// MonteCarloRequest parameterizes a resampling run. Percentages may be
// fractions (0.8) or percents (80).
type MonteCarloRequest struct {
	Iterations  int
	Percentages []float64
	Seed        *uint64
}

// MonteCarlo resamples per-market P&L contributions (realized plus known unrealized).
func (s *Service) MonteCarlo(ctx context.Context, req MonteCarloRequest) (*types.MonteCarloResult, error) {
	if req.Iterations <= 0 || req.Iterations > s.maxIterations {
		return nil, types.InvalidInputf("iterations must be in [1, %d], got %d", s.maxIterations, req.Iterations)
	}
	percentages, err := normalizePercentages(req.Percentages)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	contributions, err := s.Contributions(ctx)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(contributions))
	total := 0.0
	for _, marketID := range sortedKeys(contributions) {
		values = append(values, contributions[marketID])
		total += contributions[marketID]
	}

	start := time.Now()
	runs, err := Resample(ctx, values, MonteCarloParams{
		Iterations:  req.Iterations,
		Percentages: percentages,
		Bins:        s.bins,
		Seed:        req.Seed,
	})
	if err != nil {
		MonteCarloErrorsTotal.Inc()
		return nil, fmt.Errorf("resample: %w", err)
	}
	MonteCarloDurationSeconds.Observe(time.Since(start).Seconds())

	s.logger.Info("monte-carlo-completed",
		zap.Int("markets", len(values)),
		zap.Int("iterations", req.Iterations),
		zap.Float64s("percentages", percentages),
		zap.Duration("duration", time.Since(start)))

	return &types.MonteCarloResult{Markets: len(values), TotalPnL: total, Runs: runs}, nil
}

// Contributions returns each traded market's realized plus known unrealized P&L.
func (s *Service) Contributions(ctx context.Context) (map[string]float64, error) {
	trades, err := s.store.ReadTrades(ctx, types.TradeFilter{})
	if err != nil {
		return nil, fmt.Errorf("read trades: %w", err)
	}
	book, err := ledger.Reconstruct(trades)
	if err != nil {
		return nil, fmt.Errorf("reconstruct ledger: %w", err)
	}
	positions, err := s.calc.Positions(ctx, book, "", s.now())
	if err != nil {
		return nil, err
	}

	result := make(map[string]float64)
	for marketID, realized := range book.RealizedByMarket() {
		result[marketID] += realized.InexactFloat64()
	}
	for i := range positions {
		p := &positions[i]
		if _, ok := result[p.MarketID]; !ok {
			result[p.MarketID] = 0
		}
		if p.PriceKnown {
			result[p.MarketID] += p.UnrealizedPnL.InexactFloat64()
		}
	}
	return result, nil
}

func normalizePercentages(in []float64) ([]float64, error) {
	if len(in) == 0 {
		return DefaultPercentages, nil
	}
	out := make([]float64, len(in))
	for i, p := range in {
		if p > 1 && p <= 100 {
			p /= 100
		}
		if p <= 0 || p > 1 {
			return nil, types.InvalidInputf("percentage %v must be in (0, 1] or (1, 100]", in[i])
		}
		out[i] = p
	}
	return out, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
