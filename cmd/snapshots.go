package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/NoahJunge/polymarkettracker/internal/app"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage stored price snapshots",
}

//nolint:gochecknoglobals // Cobra boilerplate
var snapshotsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import snapshots from a CSV or JSON file",
	Long: `Imports price snapshots. Rows already stored for the same market and
timestamp are skipped, so re-importing a file is harmless.

CSV files need a header row. Required columns: market_id, timestamp,
yes_price. Optional: no_price (defaults to 1 - yes_price), volume,
liquidity, market_closed. Timestamps are RFC3339 or unix seconds.

Files ending in .json hold an array of snapshot objects in the API format.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotsImport,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(snapshotsImportCmd)
}

func runSnapshotsImport(cmd *cobra.Command, args []string) error {
	snapshots, err := readSnapshotsFile(args[0])
	if err != nil {
		return err
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		inserted, err := a.Storage().AppendSnapshots(ctx, snapshots)
		if err != nil {
			return fmt.Errorf("append snapshots: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, keyValues(
			map[string]int{"received": len(snapshots), "inserted": inserted},
			"Received", integer(len(snapshots)),
			"Inserted", integer(inserted),
			"Duplicates", integer(len(snapshots)-inserted),
		))
	})
}

func readSnapshotsFile(path string) ([]types.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var snapshots []types.Snapshot
		err = json.NewDecoder(f).Decode(&snapshots)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return snapshots, nil
	}

	return parseSnapshotsCSV(f)
}

var requiredColumns = []string{"market_id", "timestamp", "yes_price"} //nolint:gochecknoglobals // read-only

func parseSnapshotsCSV(r io.Reader) ([]types.Snapshot, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, types.InvalidInputf("CSV is missing required column %q", name)
		}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	snapshots := make([]types.Snapshot, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV line %d: %w", line, err)
		}

		snap, err := snapshotFromRecord(func(name string) string { return field(record, name) })
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, nil
}

func snapshotFromRecord(get func(string) string) (types.Snapshot, error) {
	snap := types.Snapshot{MarketID: get("market_id")}

	ts, err := parseTimestamp(get("timestamp"))
	if err != nil {
		return snap, err
	}
	snap.Timestamp = ts

	snap.YesPrice, err = decimal.NewFromString(get("yes_price"))
	if err != nil {
		return snap, types.InvalidInputf("yes_price %q: %v", get("yes_price"), err)
	}

	if raw := get("no_price"); raw != "" {
		snap.NoPrice, err = decimal.NewFromString(raw)
		if err != nil {
			return snap, types.InvalidInputf("no_price %q: %v", raw, err)
		}
	} else {
		snap.NoPrice = decimal.NewFromInt(1).Sub(snap.YesPrice)
	}

	for name, dst := range map[string]*float64{"volume": &snap.Volume, "liquidity": &snap.Liquidity} {
		raw := get(name)
		if raw == "" {
			continue
		}
		*dst, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return snap, types.InvalidInputf("%s %q: %v", name, raw, err)
		}
	}

	if raw := get("market_closed"); raw != "" {
		snap.MarketClosed, err = strconv.ParseBool(raw)
		if err != nil {
			return snap, types.InvalidInputf("market_closed %q: %v", raw, err)
		}
	}

	return snap, snap.Validate()
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, types.InvalidInputf("timestamp is empty")
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, types.InvalidInputf("timestamp %q is neither RFC3339 nor unix seconds", raw)
	}
	return ts.UTC(), nil
}
