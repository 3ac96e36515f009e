package markets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/pkg/cache"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// StatusSource answers whether a market is closed.
type StatusSource interface {
	IsMarketClosed(ctx context.Context, marketID string) (bool, error)
}

// MarketFetcher loads market metadata from an upstream API.
type MarketFetcher interface {
	FetchMarket(ctx context.Context, marketID string) (*types.Market, error)
}

// MarketStore is the metadata table the status is recorded into.
type MarketStore interface {
	UpsertMarket(ctx context.Context, market types.Market) error
	GetMarkets(ctx context.Context, ids []string) (map[string]types.Market, error)
}

// CachedStatus resolves closure through a fetcher, records the metadata and caches the flag.
type CachedStatus struct {
	fetcher MarketFetcher
	store   MarketStore
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCachedStatus creates a cached status source. store and c may be nil.
func NewCachedStatus(fetcher MarketFetcher, store MarketStore, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedStatus {
	return &CachedStatus{
		fetcher: fetcher,
		store:   store,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
	}
}

func statusKey(marketID string) string {
	return fmt.Sprintf("status:%s", marketID)
}

// IsMarketClosed returns the cached flag or fetches it upstream.
func (c *CachedStatus) IsMarketClosed(ctx context.Context, marketID string) (bool, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(statusKey(marketID)); ok {
			if closed, ok := cached.(bool); ok {
				StatusCacheHitsTotal.Inc()
				return closed, nil
			}
		}
		StatusCacheMissesTotal.Inc()
	}

	market, err := c.fetcher.FetchMarket(ctx, marketID)
	if err != nil {
		return false, err
	}

	if c.store != nil {
		if upsertErr := c.store.UpsertMarket(ctx, *market); upsertErr != nil {
			c.logger.Warn("market-record-failed",
				zap.String("market-id", marketID),
				zap.Error(upsertErr))
		}
	}

	if c.cache != nil {
		c.cache.Set(statusKey(marketID), market.Closed, c.ttl)
	}

	c.logger.Debug("market-status-fetched",
		zap.String("market-id", marketID),
		zap.Bool("closed", market.Closed))

	return market.Closed, nil
}

// Invalidate drops a cached status.
func (c *CachedStatus) Invalidate(marketID string) {
	if c.cache != nil {
		c.cache.Delete(statusKey(marketID))
	}
}

// SetClosed flips the closed flag on stored metadata, creating the row when absent.
func SetClosed(ctx context.Context, store MarketStore, marketID string, closed bool) (*types.Market, error) {
	if marketID == "" {
		return nil, types.InvalidInputf("market id cannot be empty")
	}

	existing, err := store.GetMarkets(ctx, []string{marketID})
	if err != nil {
		return nil, fmt.Errorf("get market: %w", err)
	}

	market, ok := existing[marketID]
	if !ok {
		market = types.Market{ID: marketID}
	}
	market.Closed = closed

	err = store.UpsertMarket(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("upsert market: %w", err)
	}
	return &market, nil
}
