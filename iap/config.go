package iap

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the host-level settings for a Manager and the decorators
// around its backend.
type Config struct {
	// DeveloperPayload is attached to every purchase intent. When empty a
	// fresh random payload is generated per purchase.
	DeveloperPayload string

	// CatalogCacheTTL is how long product query results are cached. Zero
	// disables the cache.
	CatalogCacheTTL time.Duration

	// BreakerFailures is the number of consecutive backend failures that
	// opens the circuit breaker. Zero disables the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	LogLevel string
}

func DefaultConfig() *Config {
	return &Config{
		CatalogCacheTTL: 5 * time.Minute,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		LogLevel:        "info",
	}
}

// LoadConfig reads configuration from the environment, loading a .env file
// first if one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.DeveloperPayload = os.Getenv("IAP_DEVELOPER_PAYLOAD")
	cfg.LogLevel = getEnv("IAP_LOG_LEVEL", cfg.LogLevel)

	var err error
	if cfg.CatalogCacheTTL, err = getDuration("IAP_CATALOG_CACHE_TTL", cfg.CatalogCacheTTL); err != nil {
		return nil, err
	}
	if cfg.BreakerTimeout, err = getDuration("IAP_BREAKER_TIMEOUT", cfg.BreakerTimeout); err != nil {
		return nil, err
	}

	if v := os.Getenv("IAP_BREAKER_FAILURES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, "invalid IAP_BREAKER_FAILURES")
		}
		cfg.BreakerFailures = uint32(n)
	}

	return cfg, nil
}

// Options returns the Manager options implied by the config.
func (c *Config) Options() []Option {
	return []Option{WithDeveloperPayload(c.DeveloperPayload)}
}

// NewLogger builds a production zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", c.LogLevel)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return d, nil
}
