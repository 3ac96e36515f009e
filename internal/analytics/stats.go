package analytics

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/NoahJunge/polymarkettracker/internal/ledger"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

const (
	// SignificanceLevel is the p-value below which a trend counts.
	SignificanceLevel = 0.05
	// MinSignificantPoints is the curve length needed before a trend can be significant.
	MinSignificantPoints = 5
	minRegressionPoints  = 3
)

// ComputeStats derives win/loss figures from per-CLOSE realized P&L and the
// curve statistics from the total P&L series.
func ComputeStats(closes []ledger.CloseResult, curve []types.EquityPoint) types.PortfolioStats {
	stats := types.PortfolioStats{TrendDirection: types.TrendNone}
	winLoss(&stats, closes)

	series := totalPnLSeries(curve)
	stats.MaxDrawdown = MaxDrawdown(curve)
	stats.SharpeRatio = Sharpe(series)
	stats.Regression = Trend(series)
	if stats.Regression != nil {
		stats.TrendSignificant = stats.Regression.PValue < SignificanceLevel &&
			stats.Regression.Points >= MinSignificantPoints
		if stats.TrendSignificant {
			stats.TrendDirection = direction(stats.Regression.Slope)
		}
	}

	return stats
}

func direction(slope float64) string {
	switch {
	case slope > 0:
		return types.TrendUp
	case slope < 0:
		return types.TrendDown
	default:
		return types.TrendNone
	}
}

func winLoss(stats *types.PortfolioStats, closes []ledger.CloseResult) {
	gains := decimal.Zero
	losses := decimal.Zero

	for i := range closes {
		pnl := closes[i].RealizedPnL
		switch {
		case pnl.IsPositive():
			stats.TotalWins++
			gains = gains.Add(pnl)
		case pnl.IsNegative():
			stats.TotalLosses++
			losses = losses.Add(pnl)
		}
	}

	decided := stats.TotalWins + stats.TotalLosses
	if decided == 0 {
		return
	}

	winRate := float64(stats.TotalWins) / float64(decided)
	stats.WinRate = &winRate

	if stats.TotalWins > 0 {
		avg := gains.Div(decimal.NewFromInt(int64(stats.TotalWins)))
		stats.AvgWin = &avg
	}
	if stats.TotalLosses > 0 {
		avg := losses.Div(decimal.NewFromInt(int64(stats.TotalLosses)))
		stats.AvgLoss = &avg

		pf := gains.Div(losses.Abs()).InexactFloat64()
		stats.ProfitFactor = &pf
	}
}

func totalPnLSeries(curve []types.EquityPoint) []float64 {
	series := make([]float64, len(curve))
	for i := range curve {
		series[i] = curve[i].TotalPnL.InexactFloat64()
	}
	return series
}

// MaxDrawdown is the largest peak-to-later-trough decline of total P&L.
func MaxDrawdown(curve []types.EquityPoint) decimal.Decimal {
	maxDD := decimal.Zero
	if len(curve) == 0 {
		return maxDD
	}

	peak := curve[0].TotalPnL
	for i := range curve {
		v := curve[i].TotalPnL
		if v.GreaterThan(peak) {
			peak = v
		}
		if dd := peak.Sub(v); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD
}

// Sharpe is mean over sample standard deviation of day-over-day changes,
// unannualized. Nil with fewer than two changes or zero deviation.
func Sharpe(series []float64) *float64 {
	if len(series) < 3 {
		return nil
	}

	changes := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		changes[i-1] = series[i] - series[i-1]
	}

	mean, std := stat.MeanStdDev(changes, nil)
	if std == 0 || math.IsNaN(std) {
		return nil
	}
	ratio := mean / std
	return &ratio
}

// Trend fits series against its index by ordinary least squares. The p-value
// is the two-sided Student t test of a zero slope. Nil with fewer than three points.
func Trend(series []float64) *types.Regression {
	n := len(series)
	if n < minRegressionPoints {
		return nil
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}

	intercept, slope := stat.LinearRegression(x, series, nil, false)

	meanX := stat.Mean(x, nil)
	meanY := stat.Mean(series, nil)
	var sxx, sst, sse float64
	for i := range x {
		dx := x[i] - meanX
		sxx += dx * dx
		dy := series[i] - meanY
		sst += dy * dy
		r := series[i] - (intercept + slope*x[i])
		sse += r * r
	}

	rSquared := 0.0
	if sst > 0 {
		rSquared = stat.RSquared(x, series, nil, intercept, slope)
	}

	return &types.Regression{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  rSquared,
		PValue:    slopePValue(slope, sse, sxx, n),
		Points:    n,
	}
}

func slopePValue(slope, sse, sxx float64, n int) float64 {
	df := float64(n - 2)
	if sse <= 1e-24 {
		if slope == 0 {
			return 1
		}
		return 0
	}

	stdErr := math.Sqrt(sse/df) / math.Sqrt(sxx)
	t := math.Abs(slope / stdErr)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(t)
}
