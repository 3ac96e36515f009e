package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/NoahJunge/polymarkettracker/internal/app"
	"github.com/NoahJunge/polymarkettracker/internal/trading"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var openCmd = &cobra.Command{
	Use:   "open <market-id> <YES|NO> <quantity>",
	Short: "Open a paper position at the latest snapshot price",
	Long: `Appends an OPEN trade priced at the newest snapshot at or before the trade
time. --at backdates the trade; the price is then the snapshot in force at
that instant.

Examples:
  polymarkettracker open 0xabc YES 10
  polymarkettracker open 0xabc NO 5 --at 2025-06-01T12:00:00Z`,
	Args: cobra.ExactArgs(3),
	RunE: runOpen,
}

//nolint:gochecknoglobals // Cobra boilerplate
var closeCmd = &cobra.Command{
	Use:   "close <market-id> <YES|NO>",
	Short: "Close shares FIFO, the whole position by default",
	Args:  cobra.ExactArgs(2),
	RunE:  runClose,
}

//nolint:gochecknoglobals // Cobra boilerplate
var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List ledger entries, newest first",
	RunE:  runTrades,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	tradeAt       string
	closeQuantity int64
	tradesMarket  string
	tradesDCA     string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(openCmd, closeCmd, tradesCmd)

	openCmd.Flags().StringVar(&tradeAt, "at", "", "Trade time (RFC3339); defaults to now")
	closeCmd.Flags().StringVar(&tradeAt, "at", "", "Trade time (RFC3339); defaults to now")
	closeCmd.Flags().Int64Var(&closeQuantity, "quantity", 0, "Shares to close; 0 closes the whole position")
	tradesCmd.Flags().StringVar(&tradesMarket, "market", "", "Only trades for this market")
	tradesCmd.Flags().StringVar(&tradesDCA, "dca", "", "Only trades placed by this DCA subscription")
}

func parseAt(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, types.InvalidInputf("--at must be RFC3339: %v", err)
	}
	return &at, nil
}

func parseQuantity(s string) (int64, error) {
	q, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, types.InvalidInputf("quantity must be an integer, got %q", s)
	}
	return q, nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	quantity, err := parseQuantity(args[2])
	if err != nil {
		return err
	}
	at, err := parseAt(tradeAt)
	if err != nil {
		return err
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		trade, err := a.Trading().OpenTrade(ctx, trading.OpenRequest{
			MarketID: args[0],
			Side:     types.Side(args[1]),
			Quantity: quantity,
			At:       at,
		})
		if err != nil {
			return fmt.Errorf("open trade: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, tradesTable([]types.Trade{*trade}))
	})
}

func runClose(cmd *cobra.Command, args []string) error {
	if closeQuantity < 0 {
		return types.InvalidInputf("--quantity cannot be negative")
	}
	at, err := parseAt(tradeAt)
	if err != nil {
		return err
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		trade, err := a.Trading().CloseTrade(ctx, trading.CloseRequest{
			MarketID: args[0],
			Side:     types.Side(args[1]),
			Quantity: closeQuantity,
			At:       at,
		})
		if err != nil {
			return fmt.Errorf("close trade: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, tradesTable([]types.Trade{*trade}))
	})
}

func runTrades(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		trades, err := a.Trading().Trades(ctx, types.TradeFilter{MarketID: tradesMarket, DCAID: tradesDCA})
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, tradesTable(trades))
	})
}

func tradesTable(trades []types.Trade) tabular {
	t := tabular{
		value:  trades,
		header: []string{"Trade ID", "Market", "Side", "Action", "Qty", "Price", "Cost", "Created", "DCA"},
	}
	for i := range trades {
		tr := &trades[i]
		dcaID := ""
		if tr.DCA != nil {
			dcaID = tr.DCA.DCAID
		}
		market := tr.MarketID
		if tr.Question != "" {
			market = tr.Question
		}
		t.rows = append(t.rows, []string{
			tr.TradeID,
			market,
			string(tr.Side),
			string(tr.Action),
			integer(tr.Quantity),
			price(tr.Price),
			money(tr.Cost()),
			tr.CreatedAt.UTC().Format(time.RFC3339),
			dcaID,
		})
	}
	return t
}
