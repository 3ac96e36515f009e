package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func validConfig() *Config {
	return &Config{
		HTTPPort:                "8080",
		StorageMode:             StorageSQLite,
		SQLitePath:              "test.db",
		MarketStatusSource:      StatusSourceStore,
		PolymarketGammaURL:      "https://gamma-api.polymarket.com",
		SchedulerEnabled:        true,
		DCACron:                 "0 30 0 * * *",
		DCAReferenceRule:        "close",
		MonteCarloMaxIterations: 1000,
		MonteCarloBins:          20,
		PositionCacheEnabled:    true,
		PositionCacheMaxItems:   64,
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.StorageMode != StorageSQLite {
		t.Errorf("expected default storage mode sqlite, got %q", cfg.StorageMode)
	}
	if cfg.DCACron != "0 30 0 * * *" {
		t.Errorf("expected default DCA cron at 00:30:00, got %q", cfg.DCACron)
	}
	if cfg.DCAReferenceRule != "close" {
		t.Errorf("expected default reference rule close, got %q", cfg.DCAReferenceRule)
	}
	if !cfg.PositionCacheEnabled {
		t.Error("expected position cache enabled by default")
	}
	if cfg.RedisAddr != "" {
		t.Errorf("expected redis disabled by default, got %q", cfg.RedisAddr)
	}
	if cfg.MonteCarloTimeout != 30*time.Second {
		t.Errorf("expected 30s Monte Carlo timeout, got %v", cfg.MonteCarloTimeout)
	}
}

func TestConfig_FromEnv(t *testing.T) {
	env := map[string]string{
		"STORAGE_MODE":           "memory",
		"REDIS_ADDR":             "localhost:6379",
		"REDIS_SNAPSHOT_TTL":     "5s",
		"POSITION_CACHE_ENABLED": "false",
		"MARKET_STATUS_SOURCE":   "gamma",
		"DCA_REFERENCE_RULE":     "open",
		"MONTE_CARLO_BINS":       "40",
		"SCHEDULER_ENABLED":      "0",
	}
	for k, v := range env {
		os.Setenv(k, v)
	}
	t.Cleanup(func() {
		for k := range env {
			os.Unsetenv(k)
		}
	})

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.StorageMode != StorageMemory {
		t.Errorf("expected memory storage, got %q", cfg.StorageMode)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.RedisSnapshotTTL != 5*time.Second {
		t.Errorf("unexpected redis config %q %v", cfg.RedisAddr, cfg.RedisSnapshotTTL)
	}
	if cfg.PositionCacheEnabled {
		t.Error("expected position cache disabled")
	}
	if cfg.MarketStatusSource != StatusSourceGamma {
		t.Errorf("expected gamma status source, got %q", cfg.MarketStatusSource)
	}
	if cfg.DCAReferenceRule != "open" {
		t.Errorf("expected open reference rule, got %q", cfg.DCAReferenceRule)
	}
	if cfg.MonteCarloBins != 40 {
		t.Errorf("expected 40 bins, got %d", cfg.MonteCarloBins)
	}
	if cfg.SchedulerEnabled {
		t.Error("expected scheduler disabled")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty-port", func(c *Config) { c.HTTPPort = "" }, "HTTP_PORT"},
		{"unknown-storage", func(c *Config) { c.StorageMode = "console" }, "STORAGE_MODE"},
		{"sqlite-needs-path", func(c *Config) { c.SQLitePath = "" }, "SQLITE_PATH"},
		{"postgres-ignores-sqlite-path", func(c *Config) { c.StorageMode = StoragePostgres; c.SQLitePath = "" }, ""},
		{"unknown-status-source", func(c *Config) { c.MarketStatusSource = "chain" }, "MARKET_STATUS_SOURCE"},
		{"gamma-needs-url", func(c *Config) {
			c.MarketStatusSource = StatusSourceGamma
			c.PolymarketGammaURL = ""
		}, "POLYMARKET_GAMMA_API_URL"},
		{"bad-reference-rule", func(c *Config) { c.DCAReferenceRule = "noon" }, "DCA_REFERENCE_RULE"},
		{"scheduler-needs-cron", func(c *Config) { c.DCACron = "" }, "DCA_CRON"},
		{"disabled-scheduler-without-cron", func(c *Config) { c.SchedulerEnabled = false; c.DCACron = "" }, ""},
		{"zero-iterations", func(c *Config) { c.MonteCarloMaxIterations = 0 }, "MONTE_CARLO_MAX_ITERATIONS"},
		{"zero-bins", func(c *Config) { c.MonteCarloBins = 0 }, "MONTE_CARLO_BINS"},
		{"negative-timeout", func(c *Config) { c.MonteCarloTimeout = -time.Second }, "MONTE_CARLO_TIMEOUT"},
		{"cache-size", func(c *Config) { c.PositionCacheMaxItems = 0 }, "POSITION_CACHE_MAX_ITEMS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_InvalidEnvFallsBackToDefault(t *testing.T) {
	os.Setenv("MONTE_CARLO_BINS", "many")
	os.Setenv("POSITION_CACHE_ENABLED", "maybe")
	os.Setenv("MONTE_CARLO_TIMEOUT", "soon")
	t.Cleanup(func() {
		os.Unsetenv("MONTE_CARLO_BINS")
		os.Unsetenv("POSITION_CACHE_ENABLED")
		os.Unsetenv("MONTE_CARLO_TIMEOUT")
	})

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.MonteCarloBins != 20 {
		t.Errorf("expected default bins 20, got %d", cfg.MonteCarloBins)
	}
	if !cfg.PositionCacheEnabled {
		t.Error("expected default position cache enabled")
	}
	if cfg.MonteCarloTimeout != 30*time.Second {
		t.Errorf("expected default timeout, got %v", cfg.MonteCarloTimeout)
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug level enabled")
	}

	logger, err = NewLogger("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected info level by default")
	}

	_, err = NewLogger("loud")
	if err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestLoadFromEnv_LogLevelFeedsLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("expected info disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Error("expected warn enabled")
	}
}
