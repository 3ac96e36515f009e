package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
	"go.uber.org/zap"
)

// timeLayout is fixed-width so text timestamps sort correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// dialect captures the differences between the SQL backends.
type dialect struct {
	name      string
	numbered  bool
	isUnique  func(error) bool
	timeValue func(time.Time) interface{}
}

// sqlStore implements Storage over database/sql. SQLite and Postgres embed it.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// rebind rewrites ? placeholders to $n for numbered dialects.
func (s *sqlStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) observe(op string, start time.Time, err error) {
	OperationDurationSeconds.WithLabelValues(s.dialect.name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		OperationErrorsTotal.WithLabelValues(s.dialect.name, op).Inc()
	}
}

func (s *sqlStore) nullTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return s.dialect.timeValue(*t)
}

// dbTime scans timestamps stored either natively or as text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func (t *dbTime) parse(v string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano} {
		parsed, err := time.Parse(layout, v)
		if err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("scan time: cannot parse %q", v)
}

// Ping checks the database connection.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	s.logger.Info("closing-storage", zap.String("dialect", s.dialect.name))
	return s.db.Close()
}

// AppendSnapshots inserts snapshots inside one transaction, ignoring duplicates.
func (s *sqlStore) AppendSnapshots(ctx context.Context, snapshots []types.Snapshot) (inserted int, err error) {
	start := time.Now()
	defer func() { s.observe("append_snapshots", start, err) }()

	if len(snapshots) == 0 {
		return 0, nil
	}
	for i := range snapshots {
		err = snapshots[i].Validate()
		if err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := s.rebind(`
		INSERT INTO snapshots (market_id, ts, yes_price, no_price, volume, liquidity, market_closed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (market_id, ts) DO NOTHING`)

	for i := range snapshots {
		snap := &snapshots[i]
		res, execErr := tx.ExecContext(ctx, query,
			snap.MarketID,
			s.dialect.timeValue(snap.Timestamp),
			snap.YesPrice,
			snap.NoPrice,
			snap.Volume,
			snap.Liquidity,
			snap.MarketClosed,
		)
		if execErr != nil {
			err = fmt.Errorf("insert snapshot: %w", execErr)
			return 0, err
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("commit snapshots: %w", err)
	}

	s.logger.Debug("snapshots-appended",
		zap.Int("received", len(snapshots)),
		zap.Int("inserted", inserted))

	return inserted, nil
}

const snapshotColumns = `market_id, ts, yes_price, no_price, volume, liquidity, market_closed`

func scanSnapshot(rows interface{ Scan(...interface{}) error }) (types.Snapshot, error) {
	var (
		snap types.Snapshot
		ts   dbTime
	)
	err := rows.Scan(&snap.MarketID, &ts, &snap.YesPrice, &snap.NoPrice, &snap.Volume, &snap.Liquidity, &snap.MarketClosed)
	if err != nil {
		return snap, err
	}
	snap.Timestamp = ts.Time
	return snap, nil
}

// ReadSnapshots returns a market's snapshots in ascending order.
func (s *sqlStore) ReadSnapshots(ctx context.Context, marketID string, from, to time.Time) (snapshots []types.Snapshot, err error) {
	start := time.Now()
	defer func() { s.observe("read_snapshots", start, err) }()

	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE market_id = ?`
	args := []interface{}{marketID}
	if !from.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, s.dialect.timeValue(from))
	}
	if !to.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, s.dialect.timeValue(to))
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		snap, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan snapshot: %w", scanErr)
		}
		snapshots = append(snapshots, snap)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return snapshots, nil
}

// LatestSnapshot returns the newest snapshot at or before asOf.
func (s *sqlStore) LatestSnapshot(ctx context.Context, marketID string, asOf time.Time) (snap *types.Snapshot, err error) {
	start := time.Now()
	defer func() { s.observe("latest_snapshot", start, err) }()

	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE market_id = ?`
	args := []interface{}{marketID}
	if !asOf.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, s.dialect.timeValue(asOf))
	}
	query += ` ORDER BY ts DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, s.rebind(query), args...)
	found, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	return &found, nil
}

func (s *sqlStore) insertTrade(ctx context.Context, ex execer, trade types.Trade) error {
	err := trade.Validate()
	if err != nil {
		return err
	}

	var dcaID sql.NullString
	if trade.IsDCA() {
		dcaID = sql.NullString{String: trade.DCA.DCAID, Valid: true}
	}

	_, err = ex.ExecContext(ctx, s.rebind(`
		INSERT INTO trades (trade_id, market_id, side, action, quantity, price, created_at, snapshot_ts, dca_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		trade.TradeID,
		trade.MarketID,
		string(trade.Side),
		string(trade.Action),
		trade.Quantity,
		trade.Price,
		s.dialect.timeValue(trade.CreatedAt),
		s.nullTime(trade.SnapshotTS),
		dcaID,
	)
	if err != nil {
		if s.dialect.isUnique(err) {
			return fmt.Errorf("insert trade %s: %w", trade.TradeID, types.ErrDuplicateTrade)
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// AppendTrade appends one trade to the ledger.
func (s *sqlStore) AppendTrade(ctx context.Context, trade types.Trade) (err error) {
	start := time.Now()
	defer func() { s.observe("append_trade", start, err) }()

	err = s.insertTrade(ctx, s.db, trade)
	if err != nil {
		return err
	}

	s.logger.Debug("trade-stored",
		zap.String("trade-id", trade.TradeID),
		zap.String("market-id", trade.MarketID),
		zap.String("action", string(trade.Action)))
	return nil
}

// ReadTrades returns trades in ledger order.
func (s *sqlStore) ReadTrades(ctx context.Context, filter types.TradeFilter) (trades []types.Trade, err error) {
	start := time.Now()
	defer func() { s.observe("read_trades", start, err) }()

	query := `SELECT trade_id, market_id, side, action, quantity, price, created_at, snapshot_ts, dca_id FROM trades WHERE 1 = 1`
	var args []interface{}
	if filter.MarketID != "" {
		query += ` AND market_id = ?`
		args = append(args, filter.MarketID)
	}
	if filter.DCAID != "" {
		query += ` AND dca_id = ?`
		args = append(args, filter.DCAID)
	}
	if filter.DCAOnly {
		query += ` AND dca_id IS NOT NULL`
	}
	query += ` ORDER BY created_at ASC, trade_id ASC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t          types.Trade
			side       string
			action     string
			createdAt  dbTime
			snapshotTS dbTime
			dcaID      sql.NullString
		)
		err = rows.Scan(&t.TradeID, &t.MarketID, &side, &action, &t.Quantity, &t.Price, &createdAt, &snapshotTS, &dcaID)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = types.Side(side)
		t.Action = types.Action(action)
		t.CreatedAt = createdAt.Time
		if snapshotTS.Valid {
			ts := snapshotTS.Time
			t.SnapshotTS = &ts
		}
		if dcaID.Valid {
			t.DCA = &types.DCATag{DCAID: dcaID.String}
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}

	return trades, nil
}

// LedgerVersion is the trade count; the ledger is append-only so it only grows.
func (s *sqlStore) LedgerVersion(ctx context.Context) (version int64, err error) {
	start := time.Now()
	defer func() { s.observe("ledger_version", start, err) }()

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return version, nil
}

func (s *sqlStore) upsertSubscription(ctx context.Context, ex execer, sub types.Subscription) error {
	var last sql.NullString
	if sub.LastExecutedDate != "" {
		last = sql.NullString{String: sub.LastExecutedDate, Valid: true}
	}

	_, err := ex.ExecContext(ctx, s.rebind(`
		INSERT INTO dca_subscriptions (dca_id, market_id, side, quantity_per_day, created_at, state, last_executed_date, total_trades_placed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dca_id) DO UPDATE SET
			market_id = excluded.market_id,
			side = excluded.side,
			quantity_per_day = excluded.quantity_per_day,
			created_at = excluded.created_at,
			state = excluded.state,
			last_executed_date = excluded.last_executed_date,
			total_trades_placed = excluded.total_trades_placed`),
		sub.DCAID,
		sub.MarketID,
		string(sub.Side),
		sub.QuantityPerDay,
		s.dialect.timeValue(sub.CreatedAt),
		string(sub.State),
		last,
		sub.TotalTradesPlaced,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// WriteSubscription replaces a subscription.
func (s *sqlStore) WriteSubscription(ctx context.Context, sub types.Subscription) (err error) {
	start := time.Now()
	defer func() { s.observe("write_subscription", start, err) }()

	return s.upsertSubscription(ctx, s.db, sub)
}

const subscriptionColumns = `dca_id, market_id, side, quantity_per_day, created_at, state, last_executed_date, total_trades_placed`

func scanSubscription(row interface{ Scan(...interface{}) error }) (types.Subscription, error) {
	var (
		sub       types.Subscription
		side      string
		state     string
		createdAt dbTime
		last      sql.NullString
	)
	err := row.Scan(&sub.DCAID, &sub.MarketID, &side, &sub.QuantityPerDay, &createdAt, &state, &last, &sub.TotalTradesPlaced)
	if err != nil {
		return sub, err
	}
	sub.Side = types.Side(side)
	sub.State = types.SubscriptionState(state)
	sub.CreatedAt = createdAt.Time
	sub.LastExecutedDate = last.String
	return sub, nil
}

// GetSubscription loads one subscription.
func (s *sqlStore) GetSubscription(ctx context.Context, dcaID string) (sub *types.Subscription, err error) {
	start := time.Now()
	defer func() { s.observe("get_subscription", start, err) }()

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+subscriptionColumns+` FROM dca_subscriptions WHERE dca_id = ?`), dcaID)
	found, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get subscription %s: %w", dcaID, types.ErrSubscriptionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &found, nil
}

// ReadSubscriptions lists subscriptions newest first.
func (s *sqlStore) ReadSubscriptions(ctx context.Context, marketID string) (subs []types.Subscription, err error) {
	start := time.Now()
	defer func() { s.observe("read_subscriptions", start, err) }()

	query := `SELECT ` + subscriptionColumns + ` FROM dca_subscriptions`
	var args []interface{}
	if marketID != "" {
		query += ` WHERE market_id = ?`
		args = append(args, marketID)
	}
	query += ` ORDER BY created_at DESC, dca_id ASC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sub, scanErr := scanSubscription(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan subscription: %w", scanErr)
		}
		subs = append(subs, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// RecordBackfill writes the subscription and its backfilled trades together.
func (s *sqlStore) RecordBackfill(ctx context.Context, sub types.Subscription, trades []types.Trade) (err error) {
	start := time.Now()
	defer func() { s.observe("record_backfill", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i := range trades {
		err = s.insertTrade(ctx, tx, trades[i])
		if err != nil {
			return err
		}
	}

	err = s.upsertSubscription(ctx, tx, sub)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit backfill: %w", err)
	}
	return nil
}

// SetSubscriptionState is a conditional state transition; the daily execution
// columns are left alone.
func (s *sqlStore) SetSubscriptionState(ctx context.Context, dcaID string, from, to types.SubscriptionState) (applied bool, err error) {
	start := time.Now()
	defer func() { s.observe("set_subscription_state", start, err) }()

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE dca_subscriptions SET state = ?
		WHERE dca_id = ? AND state = ?`),
		string(to), dcaID, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("set subscription state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// RecordDailyExecution is the conditional check-and-set guarding one trade per day.
func (s *sqlStore) RecordDailyExecution(ctx context.Context, dcaID string, day string, trade types.Trade) (applied bool, err error) {
	start := time.Now()
	defer func() { s.observe("record_daily_execution", start, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE dca_subscriptions
		SET last_executed_date = ?, total_trades_placed = total_trades_placed + 1
		WHERE dca_id = ? AND state = 'active'
		AND (last_executed_date IS NULL OR last_executed_date < ?)`),
		day, dcaID, day,
	)
	if err != nil {
		return false, fmt.Errorf("advance subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	err = s.insertTrade(ctx, tx, trade)
	if err != nil {
		return false, err
	}

	err = tx.Commit()
	if err != nil {
		return false, fmt.Errorf("commit daily execution: %w", err)
	}
	committed = true
	return true, nil
}

// UpsertMarket stores market metadata.
func (s *sqlStore) UpsertMarket(ctx context.Context, market types.Market) (err error) {
	start := time.Now()
	defer func() { s.observe("upsert_market", start, err) }()

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO markets (market_id, question, slug, closed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (market_id) DO UPDATE SET
			question = excluded.question,
			slug = excluded.slug,
			closed = excluded.closed`),
		market.ID, market.Question, market.Slug, market.Closed,
	)
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}
	return nil
}

// GetMarkets returns metadata for the ids that exist.
func (s *sqlStore) GetMarkets(ctx context.Context, ids []string) (markets map[string]types.Market, err error) {
	start := time.Now()
	defer func() { s.observe("get_markets", start, err) }()

	markets = make(map[string]types.Market, len(ids))
	if len(ids) == 0 {
		return markets, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT market_id, question, slug, closed FROM markets WHERE market_id IN (`+placeholders+`)`),
		args...)
	if err != nil {
		return nil, fmt.Errorf("query markets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m types.Market
		err = rows.Scan(&m.ID, &m.Question, &m.Slug, &m.Closed)
		if err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		markets[m.ID] = m
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markets: %w", err)
	}
	return markets, nil
}

// IsMarketClosed checks market metadata, then the newest snapshot.
func (s *sqlStore) IsMarketClosed(ctx context.Context, marketID string) (bool, error) {
	var closed bool
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT closed FROM markets WHERE market_id = ?`), marketID).Scan(&closed)
	if err == nil {
		return closed, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("query market: %w", err)
	}

	snap, err := s.LatestSnapshot(ctx, marketID, time.Time{})
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, &types.UnknownMarketError{MarketID: marketID}
	}
	return snap.MarketClosed, nil
}
