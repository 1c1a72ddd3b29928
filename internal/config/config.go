package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	CacheDBPath    string
	UniverseDBPath string
	ResultsDir     string
	S3Bucket       string // optional; empty disables object-store upload
	LogLevel       string
	Port           int

	// Fetch gateway
	FetchWorkers    int
	CallsPerMinute  int
	RetryAttempts   int
	RetryInitial    time.Duration
	RetryBackoff    float64

	// Optimization
	TopN            int
	MaxWeight       float64
	MaxSectorWeight float64
	RiskFreeRate    float64
	AlphaScalar     float64

	// Engine
	SkipPolicy      string // hold | cash
	BenchmarkTicker string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		CacheDBPath:     getEnv("CACHE_DB_PATH", "./data/cache.db"),
		UniverseDBPath:  getEnv("UNIVERSE_DB_PATH", "./data/universe.db"),
		ResultsDir:      getEnv("RESULTS_DIR", "./data/results"),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnvAsInt("PORT", 8004),
		FetchWorkers:    getEnvAsInt("FETCH_WORKERS", 10),
		CallsPerMinute:  getEnvAsInt("CALLS_PER_MINUTE", 120),
		RetryAttempts:   getEnvAsInt("RETRY_ATTEMPTS", 3),
		RetryInitial:    getEnvAsDuration("RETRY_INITIAL_DELAY", time.Second),
		RetryBackoff:    getEnvAsFloat("RETRY_BACKOFF_FACTOR", 2.0),
		TopN:            getEnvAsInt("TOP_N", 25),
		MaxWeight:       getEnvAsFloat("MAX_WEIGHT", 0.30),
		MaxSectorWeight: getEnvAsFloat("MAX_SECTOR_WEIGHT", 0.35),
		RiskFreeRate:    getEnvAsFloat("RISK_FREE_RATE", 0.02),
		AlphaScalar:     getEnvAsFloat("ALPHA_SCALAR", 0.5),
		SkipPolicy:      getEnv("SKIP_POLICY", "hold"),
		BenchmarkTicker: getEnv("BENCHMARK_TICKER", "SPY"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	if c.CacheDBPath == "" {
		return fmt.Errorf("CACHE_DB_PATH is required")
	}
	if c.FetchWorkers < 1 {
		return fmt.Errorf("FETCH_WORKERS must be >= 1")
	}
	if c.CallsPerMinute < 1 {
		return fmt.Errorf("CALLS_PER_MINUTE must be >= 1")
	}
	if c.MaxWeight <= 0 || c.MaxWeight > 1 {
		return fmt.Errorf("MAX_WEIGHT must be in (0, 1]")
	}
	if c.SkipPolicy != "hold" && c.SkipPolicy != "cash" {
		return fmt.Errorf("SKIP_POLICY must be 'hold' or 'cash', got %q", c.SkipPolicy)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
