package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/NoahJunge/polymarkettracker/internal/app"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var dcaCmd = &cobra.Command{
	Use:   "dca",
	Short: "Manage simulated daily DCA subscriptions",
}

//nolint:gochecknoglobals // Cobra boilerplate
var dcaSubscribeCmd = &cobra.Command{
	Use:   "subscribe <market-id> <YES|NO> <quantity-per-day>",
	Short: "Subscribe and backfill one trade per day of price history",
	Long: `Creates a DCA subscription and immediately backfills one OPEN trade for
every UTC day that has a snapshot, priced by DCA_REFERENCE_RULE (the day's
last snapshot for "close", the first for "open"). Days on which the market
was already closed are skipped.`,
	Args: cobra.ExactArgs(3),
	RunE: runDCASubscribe,
}

//nolint:gochecknoglobals // Cobra boilerplate
var dcaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions, newest first",
	RunE:  runDCAList,
}

//nolint:gochecknoglobals // Cobra boilerplate
var dcaGetCmd = &cobra.Command{
	Use:   "get <dca-id>",
	Short: "Show one subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runDCAGet,
}

//nolint:gochecknoglobals // Cobra boilerplate
var dcaCancelCmd = &cobra.Command{
	Use:   "cancel <dca-id>",
	Short: "Cancel a subscription; placed trades stay in the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runDCACancel,
}

//nolint:gochecknoglobals // Cobra boilerplate
var dcaExecuteCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run today's DCA trades now; safe to repeat",
	RunE:  runDCAExecute,
}

//nolint:gochecknoglobals // Cobra boilerplate
var dcaAnalyticsCmd = &cobra.Command{
	Use:   "analytics <dca-id>",
	Short: "Invested amount, average entry and current value of a subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runDCAAnalytics,
}

//nolint:gochecknoglobals // Cobra boilerplate
var dcaTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List trades placed by any subscription",
	RunE:  runDCATrades,
}

//nolint:gochecknoglobals // Cobra boilerplate
var dcaMarket string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(dcaCmd)
	dcaCmd.AddCommand(dcaSubscribeCmd, dcaListCmd, dcaGetCmd, dcaCancelCmd, dcaExecuteCmd, dcaAnalyticsCmd, dcaTradesCmd)

	dcaListCmd.Flags().StringVar(&dcaMarket, "market", "", "Only subscriptions for this market")
	dcaTradesCmd.Flags().StringVar(&dcaMarket, "market", "", "Only trades in this market")
}

func runDCASubscribe(cmd *cobra.Command, args []string) error {
	quantity, err := parseQuantity(args[2])
	if err != nil {
		return err
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		result, err := a.DCA().Subscribe(ctx, args[0], types.Side(args[1]), quantity)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, keyValues(result,
			"DCA ID", result.DCAID,
			"Market", result.MarketID,
			"Side", string(result.Side),
			"Quantity / Day", integer(result.QuantityPerDay),
			"Trades Backfilled", integer(result.TradesBackfilled),
		))
	})
}

func runDCAList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		subs, err := a.DCA().List(ctx, dcaMarket)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, subscriptionsTable(subs))
	})
}

func runDCAGet(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		sub, err := a.DCA().Get(ctx, args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, subscriptionsTable([]types.Subscription{*sub}))
	})
}

func runDCACancel(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		sub, err := a.DCA().Cancel(ctx, args[0])
		if err != nil {
			return fmt.Errorf("cancel: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, subscriptionsTable([]types.Subscription{*sub}))
	})
}

func runDCAExecute(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		result, err := a.DCA().ExecuteDaily(ctx)
		if err != nil {
			return fmt.Errorf("execute daily: %w", err)
		}

		t := tabular{value: result, header: []string{"Day", "DCA ID", "Outcome"}}
		t.rows = append(t.rows, []string{
			result.Day, "*",
			fmt.Sprintf("processed %d, placed %d", result.SubscriptionsProcessed, result.TradesPlaced),
		})
		for _, skip := range result.Skipped {
			t.rows = append(t.rows, []string{result.Day, skip.DCAID, "skipped: " + skip.Reason})
		}
		return render(cmd.OutOrStdout(), outputFormat, t)
	})
}

func runDCAAnalytics(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		result, err := a.DCA().Analytics(ctx, args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, dcaAnalyticsTable(result))
	})
}

func runDCATrades(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		trades, err := a.DCA().Trades(ctx, dcaMarket)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, tradesTable(trades))
	})
}

func subscriptionsTable(subs []types.Subscription) tabular {
	t := tabular{
		value:  subs,
		header: []string{"DCA ID", "Market", "Side", "Qty / Day", "State", "Created", "Last Executed", "Trades"},
	}
	for i := range subs {
		s := &subs[i]
		market := s.MarketID
		if s.Question != "" {
			market = s.Question
		}
		t.rows = append(t.rows, []string{
			s.DCAID,
			market,
			string(s.Side),
			integer(s.QuantityPerDay),
			string(s.State),
			s.CreatedAt.UTC().Format(time.RFC3339),
			s.LastExecutedDate,
			integer(s.TotalTradesPlaced),
		})
	}
	return t
}

func dcaAnalyticsTable(r *types.DCAAnalytics) tabular {
	return keyValues(r,
		"DCA ID", r.DCAID,
		"Market", r.MarketID,
		"Side", string(r.Side),
		"State", string(r.State),
		"Trades", integer(r.TotalTrades),
		"Shares", integer(r.TotalShares),
		"Invested", money(r.TotalInvested),
		"Avg Entry", price(r.AvgEntryPrice),
		"Current Price", optPrice(r.CurrentPrice),
		"Current Value", optMoney(r.CurrentValue),
		"Unrealized P&L", optMoney(r.UnrealizedPnL),
		"Unrealized %", optMoney(r.UnrealizedPnLPct),
		"First Trade", r.FirstTradeDate,
		"Last Trade", r.LastTradeDate,
	)
}
