// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-catalog-store/cache"
)

// Config is the full runtime configuration, loaded from CATALOG_* variables.
type Config struct {
	Database DatabaseConfig `envconfig:"DB"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Cache    CacheConfig    `envconfig:"CACHE"`

	// DefaultCommissionRate overrides the built-in 2% commission rate used
	// when a revenue accrual carries no explicit rate.
	DefaultCommissionRate string `envconfig:"DEFAULT_COMMISSION_RATE" default:""`
}

// DatabaseConfig configures the postgres connection.
type DatabaseConfig struct {
	DSN          string        `envconfig:"DSN" default:"postgres://localhost:5432/catalog?sslmode=disable"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnLifetime time.Duration `envconfig:"CONN_LIFETIME" default:"30m"`
}

// RedisConfig configures the optional redis cache store. With no address the
// container falls back to the in-process memory store.
type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:""`
	Password string `envconfig:"PASSWORD" default:""`
	DB       int    `envconfig:"DB" default:"0"`
}

// CacheConfig carries the TTL policy plus the memory store sweep interval.
type CacheConfig struct {
	EntityTTL     time.Duration `envconfig:"ENTITY_TTL" default:"30m"`
	QueryTTL      time.Duration `envconfig:"QUERY_TTL" default:"5m"`
	VolatileTTL   time.Duration `envconfig:"VOLATILE_TTL" default:"30s"`
	ReferenceTTL  time.Duration `envconfig:"REFERENCE_TTL" default:"12h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
}

// Load reads configuration from the environment under the CATALOG prefix.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("catalog", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that envconfig cannot express.
func (c Config) Validate() error {
	if err := c.TTLPolicy().Validate(); err != nil {
		return err
	}
	if c.DefaultCommissionRate != "" {
		rate, err := decimal.NewFromString(c.DefaultCommissionRate)
		if err != nil {
			return fmt.Errorf("invalid default commission rate %q: %w", c.DefaultCommissionRate, err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("default commission rate %s outside [0, 100]", rate)
		}
	}
	return nil
}

// TTLPolicy converts the cache section into the policy the repositories use.
func (c Config) TTLPolicy() cache.TTLPolicy {
	return cache.TTLPolicy{
		Entity:    c.Cache.EntityTTL,
		Query:     c.Cache.QueryTTL,
		Volatile:  c.Cache.VolatileTTL,
		Reference: c.Cache.ReferenceTTL,
	}
}
