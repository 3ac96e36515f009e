package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/app"
	"github.com/NoahJunge/polymarkettracker/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polymarkettracker",
	Short: "Paper-trading ledger and DCA simulator for Polymarket snapshots",
	Long: `Polymarket tracker records paper trades against stored price snapshots,
reconstructs FIFO positions and P&L from the trade ledger, simulates daily
DCA subscriptions and reports portfolio analytics.

Storage, caching and scheduling are configured through environment
variables (a .env file is loaded when present). Run "serve" for the HTTP
API and scheduler, or use the subcommands directly against the same store.`,
	SilenceUsage: true,
}

//nolint:gochecknoglobals // Cobra boilerplate
var outputFormat string

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatTable, "Output format: table, json, csv")
}

// withApp builds the application from the environment, runs fn and releases
// storage afterwards. The context is cancelled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	err := validateFormat(outputFormat)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = fn(ctx, application)
	if err != nil {
		logger.Debug("command-failed", zap.Error(err))
		return err
	}
	return nil
}
