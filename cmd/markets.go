package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/NoahJunge/polymarkettracker/internal/app"
	"github.com/NoahJunge/polymarkettracker/internal/markets"
)

//nolint:gochecknoglobals // Cobra boilerplate
var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "Manage market metadata",
}

//nolint:gochecknoglobals // Cobra boilerplate
var setClosedCmd = &cobra.Command{
	Use:   "set-closed <market-id>",
	Short: "Mark a market closed so DCA subscriptions on it stop",
	Long: `Records the market as closed in the metadata table. The next daily DCA
run marks active subscriptions on it exhausted. Use --reopen to undo.`,
	Args: cobra.ExactArgs(1),
	RunE: runSetClosed,
}

//nolint:gochecknoglobals // Cobra boilerplate
var reopen bool

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(marketsCmd)
	marketsCmd.AddCommand(setClosedCmd)

	setClosedCmd.Flags().BoolVar(&reopen, "reopen", false, "Mark the market open again")
}

func runSetClosed(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		market, err := markets.SetClosed(ctx, a.Storage(), args[0], !reopen)
		if err != nil {
			return fmt.Errorf("set closed: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, keyValues(market,
			"Market", market.ID,
			"Question", market.Question,
			"Closed", strconv.FormatBool(market.Closed),
		))
	})
}
