package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/analytics"
	"github.com/NoahJunge/polymarkettracker/internal/dca"
	"github.com/NoahJunge/polymarkettracker/internal/markets"
	"github.com/NoahJunge/polymarkettracker/internal/scheduler"
	"github.com/NoahJunge/polymarkettracker/internal/trading"
	"github.com/NoahJunge/polymarkettracker/pkg/healthprobe"
)

// Server provides the JSON API, the trade stream, metrics and health checks.
type Server struct {
	server        *http.Server
	handler       http.Handler
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration. Nil services leave their routes unmounted.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	// RequestTimeout bounds every API request, including Monte Carlo runs.
	RequestTimeout time.Duration

	Trading     *trading.Service
	DCA         *dca.Simulator
	Analytics   *analytics.Service
	Scheduler   *scheduler.Runner
	Markets     markets.MarketStore
	Snapshots   SnapshotWriter
	StatusCache StatusInvalidator
	Hub         *Hub
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Routes
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	if cfg.Hub != nil {
		r.Get("/ws/trades", cfg.Hub.ServeWS)
	}

	a := &api{
		trading:    cfg.Trading,
		dca:        cfg.DCA,
		analytics:  cfg.Analytics,
		scheduler:  cfg.Scheduler,
		markets:    cfg.Markets,
		snapshots:  cfg.Snapshots,
		statusHook: cfg.StatusCache,
		logger:     cfg.Logger,
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		a.routes(r)
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server:        server,
		handler:       r,
		logger:        cfg.Logger,
		healthChecker: cfg.HealthChecker,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
