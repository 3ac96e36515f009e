package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    market_id     TEXT    NOT NULL,
    ts            TEXT    NOT NULL,
    yes_price     TEXT    NOT NULL,
    no_price      TEXT    NOT NULL,
    volume        REAL    NOT NULL DEFAULT 0,
    liquidity     REAL    NOT NULL DEFAULT 0,
    market_closed INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (market_id, ts)
);

CREATE TABLE IF NOT EXISTS trades (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_id    TEXT    NOT NULL UNIQUE,
    market_id   TEXT    NOT NULL,
    side        TEXT    NOT NULL,
    action      TEXT    NOT NULL,
    quantity    INTEGER NOT NULL,
    price       TEXT    NOT NULL,
    created_at  TEXT    NOT NULL,
    snapshot_ts TEXT,
    dca_id      TEXT
);

CREATE TABLE IF NOT EXISTS dca_subscriptions (
    dca_id              TEXT PRIMARY KEY,
    market_id           TEXT    NOT NULL,
    side                TEXT    NOT NULL,
    quantity_per_day    INTEGER NOT NULL,
    created_at          TEXT    NOT NULL,
    state               TEXT    NOT NULL,
    last_executed_date  TEXT,
    total_trades_placed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS markets (
    market_id TEXT PRIMARY KEY,
    question  TEXT    NOT NULL DEFAULT '',
    slug      TEXT    NOT NULL DEFAULT '',
    closed    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_market  ON trades(market_id);
CREATE INDEX IF NOT EXISTS idx_trades_created ON trades(created_at, trade_id);
CREATE INDEX IF NOT EXISTS idx_trades_dca     ON trades(dca_id);
CREATE INDEX IF NOT EXISTS idx_dca_market     ON dca_subscriptions(market_id);
`

// SQLiteStorage implements Storage on an embedded SQLite file (pure Go, no CGo).
type SQLiteStorage struct {
	sqlStore
}

// NewSQLiteStorage opens or creates the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	_, err = db.Exec(sqliteSchema)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	logger.Info("sqlite-storage-opened", zap.String("path", path))

	return &SQLiteStorage{
		sqlStore: sqlStore{
			db:      db,
			dialect: sqliteDialect(),
			logger:  logger,
		},
	}, nil
}

func sqliteDialect() dialect {
	return dialect{
		name:     "sqlite",
		numbered: false,
		isUnique: isSQLiteUniqueViolation,
		timeValue: func(t time.Time) interface{} {
			return t.UTC().Format(timeLayout)
		},
	}
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}
