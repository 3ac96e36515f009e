package types

import "github.com/shopspring/decimal"

// EquityPoint is the portfolio state at the end of one calendar day.
type EquityPoint struct {
	Date               string          `json:"date"`
	CumulativeInvested decimal.Decimal `json:"cumulative_invested"`
	TotalPnL           decimal.Decimal `json:"total_pnl"`
	RealizedPnL        decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL      decimal.Decimal `json:"unrealized_pnl"`
	PortfolioValue     decimal.Decimal `json:"portfolio_value"`
	TotalOpenTrades    int             `json:"total_open_trades"`
	TotalCloseTrades   int             `json:"total_close_trades"`
	UnpricedPositions  int             `json:"unpriced_positions"`
}

// Trend directions.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendNone = "none"
)

// Regression is an ordinary least squares fit of total P&L on day index.
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
	PValue    float64 `json:"p_value"`
	Points    int     `json:"points"`
}

// PortfolioStats holds win/loss and curve statistics. Nil pointers mean "not computable".
type PortfolioStats struct {
	TotalWins        int              `json:"total_wins"`
	TotalLosses      int              `json:"total_losses"`
	WinRate          *float64         `json:"win_rate"`
	ProfitFactor     *float64         `json:"profit_factor"`
	AvgWin           *decimal.Decimal `json:"avg_win"`
	AvgLoss          *decimal.Decimal `json:"avg_loss"`
	SharpeRatio      *float64         `json:"sharpe_ratio"`
	MaxDrawdown      decimal.Decimal  `json:"max_drawdown"`
	Regression       *Regression      `json:"regression"`
	TrendSignificant bool             `json:"trend_significant"`
	TrendDirection   string           `json:"trend_direction"`
}

// EquityCurve is the curve together with its statistics.
type EquityCurve struct {
	Curve []EquityPoint  `json:"curve"`
	Stats PortfolioStats `json:"stats"`
}

// HistogramBin is one fixed-width bin of a Monte Carlo distribution.
type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// MonteCarloRun is the distribution for one sample fraction.
type MonteCarloRun struct {
	Percentage   float64        `json:"percentage"`
	SampleSize   int            `json:"sample_size"`
	Iterations   int            `json:"iterations"`
	Mean         float64        `json:"mean"`
	Median       float64        `json:"median"`
	P5           float64        `json:"p5"`
	P95          float64        `json:"p95"`
	StdDev       float64        `json:"std_dev"`
	ProbPositive float64        `json:"prob_positive"`
	Histogram    []HistogramBin `json:"histogram"`
}

// MonteCarloResult is the resampling result over per-market contributions.
type MonteCarloResult struct {
	Markets  int             `json:"markets"`
	TotalPnL float64         `json:"total_pnl"`
	Runs     []MonteCarloRun `json:"runs"`
}
