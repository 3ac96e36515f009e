package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NoahJunge/polymarkettracker/internal/analytics"
	"github.com/NoahJunge/polymarkettracker/internal/app"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var equityCurveCmd = &cobra.Command{
	Use:   "equity-curve",
	Short: "Daily invested amount, P&L and value since the first trade",
	RunE:  runEquityCurve,
}

//nolint:gochecknoglobals // Cobra boilerplate
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Win rate, profit factor, Sharpe, drawdown and P&L trend",
	RunE:  runStats,
}

//nolint:gochecknoglobals // Cobra boilerplate
var monteCarloCmd = &cobra.Command{
	Use:   "monte-carlo",
	Short: "Resample per-market P&L to estimate its distribution",
	Long: `Draws random subsets of markets without replacement and sums their total
P&L, once per iteration, for each sample percentage. Percentages may be
fractions (0.8) or percents (80).

Examples:
  polymarkettracker monte-carlo --iterations 20000 --percentages 50,75,90
  polymarkettracker monte-carlo --seed 42 --format json`,
	RunE: runMonteCarlo,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	curveFrom  string
	curveTo    string
	mcIter     int
	mcPercents []float64
	mcSeed     uint64
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(equityCurveCmd, statsCmd, monteCarloCmd)

	equityCurveCmd.Flags().StringVar(&curveFrom, "from", "", "First day to show (YYYY-MM-DD)")
	equityCurveCmd.Flags().StringVar(&curveTo, "to", "", "Last day to show (YYYY-MM-DD)")

	monteCarloCmd.Flags().IntVar(&mcIter, "iterations", 10000, "Resamples per percentage")
	monteCarloCmd.Flags().Float64SliceVar(&mcPercents, "percentages", nil, "Sample sizes as fractions or percents (default 0.7,0.8,0.9)")
	monteCarloCmd.Flags().Uint64Var(&mcSeed, "seed", 0, "Random seed for reproducible runs")
}

func runEquityCurve(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		curve, err := a.Analytics().EquityCurve(ctx, curveFrom, curveTo)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, curveTable(curve))
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		stats, err := a.Analytics().Stats(ctx)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, statsTable(stats))
	})
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	seedSet := cmd.Flags().Changed("seed")

	return withApp(func(ctx context.Context, a *app.App) error {
		req := analytics.MonteCarloRequest{Iterations: mcIter, Percentages: mcPercents}
		if seedSet {
			seed := mcSeed
			req.Seed = &seed
		}

		result, err := a.Analytics().MonteCarlo(ctx, req)
		if err != nil {
			return fmt.Errorf("monte carlo: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, monteCarloTable(result))
	})
}

func curveTable(c *types.EquityCurve) tabular {
	t := tabular{
		value:  c,
		header: []string{"Date", "Invested", "Realized", "Unrealized", "Total P&L", "Value", "Opens", "Closes", "Unpriced"},
	}
	for i := range c.Curve {
		p := &c.Curve[i]
		t.rows = append(t.rows, []string{
			p.Date,
			money(p.CumulativeInvested),
			money(p.RealizedPnL),
			money(p.UnrealizedPnL),
			money(p.TotalPnL),
			money(p.PortfolioValue),
			integer(p.TotalOpenTrades),
			integer(p.TotalCloseTrades),
			integer(p.UnpricedPositions),
		})
	}
	return t
}

func statsTable(s *types.PortfolioStats) tabular {
	slope, r2, pValue := "-", "-", "-"
	if s.Regression != nil {
		slope = float(s.Regression.Slope, 4)
		r2 = float(s.Regression.RSquared, 4)
		pValue = float(s.Regression.PValue, 4)
	}
	return keyValues(s,
		"Wins", integer(s.TotalWins),
		"Losses", integer(s.TotalLosses),
		"Win Rate", optFloat(s.WinRate, 4),
		"Profit Factor", optFloat(s.ProfitFactor, 4),
		"Avg Win", optMoney(s.AvgWin),
		"Avg Loss", optMoney(s.AvgLoss),
		"Sharpe", optFloat(s.SharpeRatio, 4),
		"Max Drawdown", money(s.MaxDrawdown),
		"Trend Slope / Day", slope,
		"Trend R²", r2,
		"Trend p-value", pValue,
		"Trend", s.TrendDirection,
	)
}

func monteCarloTable(r *types.MonteCarloResult) tabular {
	t := tabular{
		value:  r,
		header: []string{"Sample %", "Markets", "Iterations", "Mean", "Median", "P5", "P95", "Std Dev", "P(>0)"},
	}
	for i := range r.Runs {
		run := &r.Runs[i]
		t.rows = append(t.rows, []string{
			float(run.Percentage*100, 0),
			fmt.Sprintf("%d/%d", run.SampleSize, r.Markets),
			integer(run.Iterations),
			float(run.Mean, 2),
			float(run.Median, 2),
			float(run.P5, 2),
			float(run.P95, 2),
			float(run.StdDev, 2),
			float(run.ProbPositive, 3),
		})
	}
	return t
}
