package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/analytics"
	"github.com/NoahJunge/polymarkettracker/internal/dca"
	"github.com/NoahJunge/polymarkettracker/internal/scheduler"
	"github.com/NoahJunge/polymarkettracker/internal/storage"
	"github.com/NoahJunge/polymarkettracker/internal/trading"
	"github.com/NoahJunge/polymarkettracker/pkg/cache"
	"github.com/NoahJunge/polymarkettracker/pkg/config"
	"github.com/NoahJunge/polymarkettracker/pkg/healthprobe"
	"github.com/NoahJunge/polymarkettracker/pkg/httpserver"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	hub           *httpserver.Hub
	storage       storage.Storage
	caches        []cache.Cache
	trading       *trading.Service
	dca           *dca.Simulator
	analytics     *analytics.Service
	scheduler     *scheduler.Runner
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// Options holds application options.
type Options struct {
	// Storage replaces the configured backend when set. The app still closes it.
	Storage storage.Storage
	// Clock overrides the wall clock for every service.
	Clock func() time.Time
}

// Trading returns the paper-trading service.
func (a *App) Trading() *trading.Service { return a.trading }

// DCA returns the DCA simulator.
func (a *App) DCA() *dca.Simulator { return a.dca }

// Analytics returns the portfolio analytics service.
func (a *App) Analytics() *analytics.Service { return a.analytics }

// Storage returns the storage backend.
func (a *App) Storage() storage.Storage { return a.storage }

// Scheduler returns the job runner.
func (a *App) Scheduler() *scheduler.Runner { return a.scheduler }

// HTTPServer returns the API server.
func (a *App) HTTPServer() *httpserver.Server { return a.httpServer }
