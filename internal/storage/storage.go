package storage

import (
	"context"
	"time"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// SnapshotStore is the price history. Snapshots are deduplicated on (market_id, timestamp).
type SnapshotStore interface {
	// AppendSnapshots inserts snapshots, skipping duplicates. Returns the number inserted.
	AppendSnapshots(ctx context.Context, snapshots []types.Snapshot) (int, error)

	// ReadSnapshots returns snapshots for a market in ascending timestamp order.
	// Zero bounds are open.
	ReadSnapshots(ctx context.Context, marketID string, from, to time.Time) ([]types.Snapshot, error)

	// LatestSnapshot returns the newest snapshot at or before asOf, or nil.
	// A zero asOf means the newest snapshot overall.
	LatestSnapshot(ctx context.Context, marketID string, asOf time.Time) (*types.Snapshot, error)
}

// TradeLedger is the append-only trade log.
type TradeLedger interface {
	// AppendTrade inserts a trade. Returns types.ErrDuplicateTrade on a repeated trade_id.
	AppendTrade(ctx context.Context, trade types.Trade) error

	// ReadTrades returns matching trades ordered by created_at, then trade_id.
	ReadTrades(ctx context.Context, filter types.TradeFilter) ([]types.Trade, error)

	// LedgerVersion increases with every append.
	LedgerVersion(ctx context.Context) (int64, error)
}

// SubscriptionStore persists DCA subscriptions.
type SubscriptionStore interface {
	// WriteSubscription replaces the subscription keyed by dca_id.
	WriteSubscription(ctx context.Context, sub types.Subscription) error

	// GetSubscription returns types.ErrSubscriptionNotFound when absent.
	GetSubscription(ctx context.Context, dcaID string) (*types.Subscription, error)

	// ReadSubscriptions returns subscriptions newest first, optionally for one market.
	ReadSubscriptions(ctx context.Context, marketID string) ([]types.Subscription, error)

	// RecordBackfill creates sub together with its backfilled trades in one transaction.
	RecordBackfill(ctx context.Context, sub types.Subscription, trades []types.Trade) error

	// SetSubscriptionState moves a subscription from one state to another and
	// touches no other column. It returns false when the stored state is not from.
	SetSubscriptionState(ctx context.Context, dcaID string, from, to types.SubscriptionState) (bool, error)

	// RecordDailyExecution atomically advances last_executed_date to day and appends trade.
	// It returns false without writing when the subscription is not active or
	// already executed on or after day.
	RecordDailyExecution(ctx context.Context, dcaID string, day string, trade types.Trade) (bool, error)
}

// MarketStore holds market metadata.
type MarketStore interface {
	UpsertMarket(ctx context.Context, market types.Market) error
	GetMarkets(ctx context.Context, ids []string) (map[string]types.Market, error)

	// IsMarketClosed answers from market metadata, falling back to the newest
	// snapshot's flag. Returns types.ErrUnknownMarket when neither exists.
	IsMarketClosed(ctx context.Context, marketID string) (bool, error)
}

// Storage is everything the engine reads and writes.
type Storage interface {
	SnapshotStore
	TradeLedger
	SubscriptionStore
	MarketStore

	Ping(ctx context.Context) error
	Close() error
}
