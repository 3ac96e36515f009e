package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/analytics"
	"github.com/NoahJunge/polymarkettracker/internal/dca"
	"github.com/NoahJunge/polymarkettracker/internal/markets"
	"github.com/NoahJunge/polymarkettracker/internal/scheduler"
	"github.com/NoahJunge/polymarkettracker/internal/storage"
	"github.com/NoahJunge/polymarkettracker/internal/trading"
	"github.com/NoahJunge/polymarkettracker/pkg/cache"
	"github.com/NoahJunge/polymarkettracker/pkg/config"
	"github.com/NoahJunge/polymarkettracker/pkg/healthprobe"
	"github.com/NoahJunge/polymarkettracker/pkg/httpserver"
)

// DCADailyJob is the scheduler name of the daily DCA run.
const DCADailyJob = "dca-daily"

const (
	redisConnectTimeout = 5 * time.Second
	statusCacheMaxItems = 1000
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	rule, err := dca.ParseReferenceRule(cfg.DCAReferenceRule)
	if err != nil {
		return nil, fmt.Errorf("parse dca reference rule: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: setupHealthChecker(),
		hub:           httpserver.NewHub(logger),
		ctx:           ctx,
		cancel:        cancel,
	}

	a.storage = opts.Storage
	if a.storage == nil {
		a.storage, err = setupStorage(ctx, cfg, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("setup storage: %w", err)
		}
	}
	a.healthChecker.AddCheck("storage", a.storage.Ping)

	positionCache, err := setupPositionCache(cfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("setup position cache: %w", err)
	}
	if positionCache != nil {
		a.caches = append(a.caches, positionCache)
	}

	status, sc, err := setupStatusSource(cfg, logger, a.storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("setup status source: %w", err)
	}
	var invalidator httpserver.StatusInvalidator
	if sc != nil {
		a.caches = append(a.caches, sc.cache)
		invalidator = sc.status
	}

	a.trading = trading.New(&trading.Config{
		Store:    a.storage,
		Cache:    positionCache,
		Notifier: a.hub,
		Logger:   logger,
		Clock:    opts.Clock,
	})

	a.dca = dca.New(&dca.Config{
		Store:    a.storage,
		Status:   status,
		Rule:     rule,
		Notifier: a.hub,
		Logger:   logger,
		Clock:    opts.Clock,
	})

	a.analytics = analytics.New(&analytics.Config{
		Store:         a.storage,
		Logger:        logger,
		Clock:         opts.Clock,
		MaxIterations: cfg.MonteCarloMaxIterations,
		Bins:          cfg.MonteCarloBins,
		Timeout:       cfg.MonteCarloTimeout,
	})

	a.scheduler, err = setupScheduler(ctx, cfg, logger, a.dca)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("setup scheduler: %w", err)
	}

	// Leave headroom for a Monte Carlo run that uses its full budget.
	var requestTimeout time.Duration
	if cfg.MonteCarloTimeout > 0 {
		requestTimeout = cfg.MonteCarloTimeout + 5*time.Second
	}

	a.httpServer = httpserver.New(&httpserver.Config{
		Port:           cfg.HTTPPort,
		Logger:         logger,
		HealthChecker:  a.healthChecker,
		RequestTimeout: requestTimeout,
		Trading:        a.trading,
		DCA:            a.dca,
		Analytics:      a.analytics,
		Scheduler:      a.scheduler,
		Markets:        a.storage,
		Snapshots:      a.storage,
		StatusCache:    invalidator,
		Hub:            a.hub,
	})

	return a, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	var store storage.Storage
	switch cfg.StorageMode {
	case config.StoragePostgres:
		pgStorage, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		store = pgStorage
	case config.StorageMemory:
		store = storage.NewMemoryStorage()
	default:
		sqliteStorage, err := storage.NewSQLiteStorage(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("create sqlite storage: %w", err)
		}
		store = sqliteStorage
	}

	logger.Info("storage-ready", zap.String("mode", cfg.StorageMode))

	if cfg.RedisAddr == "" {
		return store, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	err := client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()
		_ = store.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("redis-snapshot-cache-enabled",
		zap.String("addr", cfg.RedisAddr),
		zap.Duration("ttl", cfg.RedisSnapshotTTL))

	return storage.NewRedisSnapshotCache(store, client, cfg.RedisSnapshotTTL, logger), nil
}

func setupPositionCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	if !cfg.PositionCacheEnabled {
		return nil, nil
	}
	c, err := cache.NewRistrettoCache(cache.DefaultConfig("positions", cfg.PositionCacheMaxItems, logger))
	if err != nil {
		return nil, err
	}
	return c, nil
}

type statusCache struct {
	status *markets.CachedStatus
	cache  cache.Cache
}

// setupStatusSource returns the store itself unless market status comes from the Gamma API.
func setupStatusSource(cfg *config.Config, logger *zap.Logger, store storage.Storage) (dca.StatusSource, *statusCache, error) {
	if cfg.MarketStatusSource != config.StatusSourceGamma {
		return store, nil, nil
	}

	c, err := cache.NewRistrettoCache(cache.DefaultConfig("market-status", statusCacheMaxItems, logger))
	if err != nil {
		return nil, nil, err
	}

	status := markets.NewCachedStatus(
		markets.NewGammaClient(cfg.PolymarketGammaURL, logger),
		store,
		c,
		cfg.MarketStatusCacheTTL,
		logger,
	)
	return status, &statusCache{status: status, cache: c}, nil
}

func setupScheduler(ctx context.Context, cfg *config.Config, logger *zap.Logger, simulator *dca.Simulator) (*scheduler.Runner, error) {
	runner := scheduler.New(ctx, nil, logger)

	err := runner.Add(scheduler.Job{
		Name:     DCADailyJob,
		Schedule: cfg.DCACron,
		Run: func(ctx context.Context) (string, error) {
			result, err := simulator.ExecuteDaily(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("day=%s processed=%d placed=%d skipped=%d",
				result.Day, result.SubscriptionsProcessed, result.TradesPlaced, len(result.Skipped)), nil
		},
	})
	if err != nil {
		return nil, err
	}

	return runner, nil
}
