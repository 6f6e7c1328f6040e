package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %d, want 25", cfg.Database.MaxOpenConns)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("Redis.Addr = %q, want empty default", cfg.Redis.Addr)
	}

	policy := cfg.TTLPolicy()
	if policy.Entity != 30*time.Minute {
		t.Errorf("Entity ttl = %v", policy.Entity)
	}
	if policy.Volatile != 30*time.Second {
		t.Errorf("Volatile ttl = %v", policy.Volatile)
	}
	if err := policy.Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CATALOG_DB_DSN", "postgres://db:5432/catalog_test?sslmode=disable")
	t.Setenv("CATALOG_REDIS_ADDR", "redis:6379")
	t.Setenv("CATALOG_CACHE_VOLATILE_TTL", "10s")
	t.Setenv("CATALOG_DEFAULT_COMMISSION_RATE", "3.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.DSN != "postgres://db:5432/catalog_test?sslmode=disable" {
		t.Errorf("DSN = %q", cfg.Database.DSN)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Cache.VolatileTTL != 10*time.Second {
		t.Errorf("VolatileTTL = %v", cfg.Cache.VolatileTTL)
	}
	if cfg.DefaultCommissionRate != "3.5" {
		t.Errorf("DefaultCommissionRate = %q", cfg.DefaultCommissionRate)
	}
}

func TestValidateRejectsBadRate(t *testing.T) {
	tests := []struct {
		name string
		rate string
	}{
		{"not a number", "two percent"},
		{"negative", "-1"},
		{"above hundred", "100.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CATALOG_DEFAULT_COMMISSION_RATE", tt.rate)
			if _, err := Load(); err == nil {
				t.Errorf("Load() accepted rate %q", tt.rate)
			}
		})
	}
}

func TestValidateRejectsBadTTL(t *testing.T) {
	t.Setenv("CATALOG_CACHE_QUERY_TTL", "0s")
	if _, err := Load(); err == nil {
		t.Error("Load() accepted zero query ttl")
	}
}
