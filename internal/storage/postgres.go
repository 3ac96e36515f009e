package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    market_id     TEXT             NOT NULL,
    ts            TIMESTAMPTZ      NOT NULL,
    yes_price     NUMERIC(12, 6)   NOT NULL,
    no_price      NUMERIC(12, 6)   NOT NULL,
    volume        DOUBLE PRECISION NOT NULL DEFAULT 0,
    liquidity     DOUBLE PRECISION NOT NULL DEFAULT 0,
    market_closed BOOLEAN          NOT NULL DEFAULT FALSE,
    PRIMARY KEY (market_id, ts)
);

CREATE TABLE IF NOT EXISTS trades (
    seq         BIGSERIAL PRIMARY KEY,
    trade_id    TEXT           NOT NULL UNIQUE,
    market_id   TEXT           NOT NULL,
    side        TEXT           NOT NULL,
    action      TEXT           NOT NULL,
    quantity    BIGINT         NOT NULL,
    price       NUMERIC(12, 6) NOT NULL,
    created_at  TIMESTAMPTZ    NOT NULL,
    snapshot_ts TIMESTAMPTZ,
    dca_id      TEXT
);

CREATE TABLE IF NOT EXISTS dca_subscriptions (
    dca_id              TEXT PRIMARY KEY,
    market_id           TEXT        NOT NULL,
    side                TEXT        NOT NULL,
    quantity_per_day    BIGINT      NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL,
    state               TEXT        NOT NULL,
    last_executed_date  TEXT,
    total_trades_placed INTEGER     NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS markets (
    market_id TEXT PRIMARY KEY,
    question  TEXT    NOT NULL DEFAULT '',
    slug      TEXT    NOT NULL DEFAULT '',
    closed    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_trades_market  ON trades(market_id);
CREATE INDEX IF NOT EXISTS idx_trades_created ON trades(created_at, trade_id);
CREATE INDEX IF NOT EXISTS idx_trades_dca     ON trades(dca_id);
CREATE INDEX IF NOT EXISTS idx_dca_market     ON dca_subscriptions(market_id);
`

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	sqlStore
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects to PostgreSQL and applies the schema.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Test connection
	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	_, err = db.ExecContext(ctx, postgresSchema)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return newPostgresStorage(db, cfg.Logger), nil
}

func newPostgresStorage(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		sqlStore: sqlStore{
			db:      db,
			dialect: postgresDialect(),
			logger:  logger,
		},
	}
}

func postgresDialect() dialect {
	return dialect{
		name:     "postgres",
		numbered: true,
		isUnique: isPostgresUniqueViolation,
		timeValue: func(t time.Time) interface{} {
			return t.UTC()
		},
	}
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
