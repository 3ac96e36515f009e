package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/NoahJunge/polymarkettracker/internal/app"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Display open positions reconstructed from the ledger",
	Long: `Replays the trade ledger FIFO and marks every open (market, side) holding
at the newest snapshot. Holdings without any snapshot show "-" for price,
value and unrealized P&L rather than zero.

Examples:
  # Table (default)
  polymarkettracker positions

  # One market as JSON
  polymarkettracker positions --market 0xabc --format json

  # Export to CSV
  polymarkettracker positions --format csv > positions.csv`,
	RunE: runPositions,
}

//nolint:gochecknoglobals // Cobra boilerplate
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Portfolio totals across all open positions",
	RunE:  runSummary,
}

//nolint:gochecknoglobals // Cobra boilerplate
var positionsMarket string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(positionsCmd, summaryCmd)

	positionsCmd.Flags().StringVar(&positionsMarket, "market", "", "Only positions in this market")
}

func runPositions(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		positions, err := a.Trading().GetPositions(ctx, positionsMarket)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, positionsTable(positions))
	})
}

func runSummary(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		summary, err := a.Trading().GetPortfolioSummary(ctx)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, summaryTable(summary))
	})
}

func positionsTable(positions []types.Position) tabular {
	t := tabular{
		value: positions,
		header: []string{
			"Market", "Side", "Qty", "Avg Entry", "Cost Basis", "Price",
			"Value", "Unrealized", "Unrealized %", "Realized", "Last Trade", "Status",
		},
	}
	for i := range positions {
		p := &positions[i]
		market := p.MarketID
		if p.Question != "" {
			market = p.Question
		}
		status := "ACTIVE"
		if p.Closed {
			status = "CLOSED"
		}
		t.rows = append(t.rows, []string{
			market,
			string(p.Side),
			integer(p.NetQuantity),
			price(p.AvgEntryPrice),
			money(p.CostBasis),
			optPrice(p.CurrentPrice),
			optMoney(p.MarketValue),
			optMoney(p.UnrealizedPnL),
			optMoney(p.UnrealizedPnLPct),
			money(p.RealizedPnL),
			p.LastTradeDate,
			status,
		})
	}
	return t
}

func summaryTable(s *types.PortfolioSummary) tabular {
	return keyValues(s,
		"Total Equity", money(s.TotalEquity),
		"Total Cost Basis", money(s.TotalCostBasis),
		"Unrealized P&L", money(s.TotalUnrealizedPnL),
		"Realized P&L", money(s.TotalRealizedPnL),
		"Open Positions", integer(s.OpenPositionCount),
		"Unpriced Positions", integer(s.UnpricedPositionCount),
		"Total Trades", integer(s.TotalTrades),
	)
}
