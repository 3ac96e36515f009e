package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage modes.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Market status sources.
const (
	StatusSourceStore = "store"
	StatusSourceGamma = "gamma"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel        string
	HTTPPort        string
	ShutdownTimeout time.Duration

	// Storage
	StorageMode  string // "sqlite", "postgres" or "memory"
	SQLitePath   string
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Redis snapshot cache; disabled when RedisAddr is empty
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisSnapshotTTL time.Duration

	// Position cache
	PositionCacheEnabled  bool
	PositionCacheMaxItems int64

	// Market status
	MarketStatusSource   string // "store" or "gamma"
	PolymarketGammaURL   string
	MarketStatusCacheTTL time.Duration

	// Scheduler
	SchedulerEnabled bool
	DCACron          string

	// DCA
	DCAReferenceRule string

	// Monte Carlo
	MonteCarloMaxIterations int
	MonteCarloBins          int
	MonteCarloTimeout       time.Duration
}

// LoadFromEnv loads configuration from environment variables with defaults.
// A .env file in the working directory is applied first when present.
func LoadFromEnv() (*Config, error) {
	// Missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfg := &Config{
		// Application defaults
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:        getEnvOrDefault("HTTP_PORT", "8080"),
		ShutdownTimeout: getDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", StorageSQLite),
		SQLitePath:   getEnvOrDefault("SQLITE_PATH", "polymarkettracker.db"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "polymarket"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "polymarket123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "polymarkettracker"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		// Redis defaults
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getIntOrDefault("REDIS_DB", 0),
		RedisSnapshotTTL: getDurationOrDefault("REDIS_SNAPSHOT_TTL", 30*time.Second),

		// Position cache defaults
		PositionCacheEnabled:  getBoolOrDefault("POSITION_CACHE_ENABLED", true),
		PositionCacheMaxItems: int64(getIntOrDefault("POSITION_CACHE_MAX_ITEMS", 64)),

		// Market status defaults
		MarketStatusSource:   getEnvOrDefault("MARKET_STATUS_SOURCE", StatusSourceStore),
		PolymarketGammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		MarketStatusCacheTTL: getDurationOrDefault("MARKET_STATUS_CACHE_TTL", 10*time.Minute),

		// Scheduler defaults: 00:30:00 UTC daily
		SchedulerEnabled: getBoolOrDefault("SCHEDULER_ENABLED", true),
		DCACron:          getEnvOrDefault("DCA_CRON", "0 30 0 * * *"),

		DCAReferenceRule: getEnvOrDefault("DCA_REFERENCE_RULE", "close"),

		// Monte Carlo defaults
		MonteCarloMaxIterations: getIntOrDefault("MONTE_CARLO_MAX_ITERATIONS", 100000),
		MonteCarloBins:          getIntOrDefault("MONTE_CARLO_BINS", 20),
		MonteCarloTimeout:       getDurationOrDefault("MONTE_CARLO_TIMEOUT", 30*time.Second),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	switch c.StorageMode {
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty in sqlite mode")
		}
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("STORAGE_MODE must be 'sqlite', 'postgres' or 'memory', got %q", c.StorageMode)
	}

	if c.MarketStatusSource != StatusSourceStore && c.MarketStatusSource != StatusSourceGamma {
		return fmt.Errorf("MARKET_STATUS_SOURCE must be 'store' or 'gamma', got %q", c.MarketStatusSource)
	}

	if c.MarketStatusSource == StatusSourceGamma && c.PolymarketGammaURL == "" {
		return fmt.Errorf("POLYMARKET_GAMMA_API_URL cannot be empty when MARKET_STATUS_SOURCE is gamma")
	}

	if c.DCAReferenceRule != "close" && c.DCAReferenceRule != "open" {
		return fmt.Errorf("DCA_REFERENCE_RULE must be 'close' or 'open', got %q", c.DCAReferenceRule)
	}

	if c.SchedulerEnabled && c.DCACron == "" {
		return fmt.Errorf("DCA_CRON cannot be empty when the scheduler is enabled")
	}

	if c.MonteCarloMaxIterations <= 0 {
		return fmt.Errorf("MONTE_CARLO_MAX_ITERATIONS must be positive, got %d", c.MonteCarloMaxIterations)
	}

	if c.MonteCarloBins <= 0 {
		return fmt.Errorf("MONTE_CARLO_BINS must be positive, got %d", c.MonteCarloBins)
	}

	if c.MonteCarloTimeout < 0 {
		return fmt.Errorf("MONTE_CARLO_TIMEOUT cannot be negative, got %v", c.MonteCarloTimeout)
	}

	if c.PositionCacheEnabled && c.PositionCacheMaxItems <= 0 {
		return fmt.Errorf("POSITION_CACHE_MAX_ITEMS must be positive, got %d", c.PositionCacheMaxItems)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
