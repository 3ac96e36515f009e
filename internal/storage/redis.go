package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// RedisSnapshotCache wraps a Storage and caches each market's newest snapshot in Redis.
// Only LatestSnapshot calls without an asOf bound are served from the cache.
type RedisSnapshotCache struct {
	Storage
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSnapshotCache wraps inner with a Redis latest-snapshot cache.
func NewRedisSnapshotCache(inner Storage, client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSnapshotCache {
	return &RedisSnapshotCache{
		Storage: inner,
		client:  client,
		ttl:     ttl,
		logger:  logger,
	}
}

func latestSnapshotKey(marketID string) string {
	return fmt.Sprintf("snapshot:latest:%s", marketID)
}

// AppendSnapshots writes through and drops the cached entries of touched markets.
func (r *RedisSnapshotCache) AppendSnapshots(ctx context.Context, snapshots []types.Snapshot) (int, error) {
	inserted, err := r.Storage.AppendSnapshots(ctx, snapshots)
	if err != nil {
		return inserted, err
	}

	seen := make(map[string]struct{})
	keys := make([]string, 0)
	for i := range snapshots {
		if _, ok := seen[snapshots[i].MarketID]; ok {
			continue
		}
		seen[snapshots[i].MarketID] = struct{}{}
		keys = append(keys, latestSnapshotKey(snapshots[i].MarketID))
	}
	if len(keys) > 0 {
		if delErr := r.client.Del(ctx, keys...).Err(); delErr != nil {
			r.logger.Warn("snapshot-cache-invalidate-failed", zap.Error(delErr))
		}
	}
	return inserted, nil
}

// LatestSnapshot serves unbounded lookups from Redis, falling back to the inner store.
func (r *RedisSnapshotCache) LatestSnapshot(ctx context.Context, marketID string, asOf time.Time) (*types.Snapshot, error) {
	if !asOf.IsZero() {
		return r.Storage.LatestSnapshot(ctx, marketID, asOf)
	}

	key := latestSnapshotKey(marketID)
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var snap types.Snapshot
		if jsonErr := json.Unmarshal(raw, &snap); jsonErr == nil {
			SnapshotCacheHitsTotal.Inc()
			return &snap, nil
		}
		r.logger.Warn("snapshot-cache-decode-failed", zap.String("market-id", marketID))
	case errors.Is(err, redis.Nil):
	default:
		r.logger.Warn("snapshot-cache-get-failed",
			zap.String("market-id", marketID),
			zap.Error(err))
	}

	SnapshotCacheMissesTotal.Inc()
	snap, err := r.Storage.LatestSnapshot(ctx, marketID, asOf)
	if err != nil || snap == nil {
		return snap, err
	}

	payload, err := json.Marshal(snap)
	if err == nil {
		if setErr := r.client.Set(ctx, key, payload, r.ttl).Err(); setErr != nil {
			r.logger.Warn("snapshot-cache-set-failed",
				zap.String("market-id", marketID),
				zap.Error(setErr))
		}
	}
	return snap, nil
}

// Ping checks both Redis and the inner store.
func (r *RedisSnapshotCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return r.Storage.Ping(ctx)
}

// Close closes the Redis client and the inner store.
func (r *RedisSnapshotCache) Close() error {
	redisErr := r.client.Close()
	innerErr := r.Storage.Close()
	return errors.Join(redisErr, innerErr)
}
