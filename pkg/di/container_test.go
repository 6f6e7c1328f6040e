package di

import (
	"testing"

	"github.com/goliatone/go-catalog-store/config"
)

func TestNewContainerWithDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	container, err := NewContainer(cfg, nil)
	if err != nil {
		t.Fatalf("NewContainer() error = %v", err)
	}
	defer container.Close()

	if container.DB() == nil {
		t.Error("DB() is nil")
	}
	if container.CacheStore() == nil {
		t.Error("CacheStore() is nil")
	}
	if container.Cache() == nil {
		t.Error("Cache() is nil")
	}
	if container.KeyDeriver() == nil {
		t.Error("KeyDeriver() is nil")
	}
	if container.Coordinator() == nil {
		t.Error("Coordinator() is nil")
	}
	if container.AuditStore() == nil {
		t.Error("AuditStore() is nil")
	}

	if container.Categories() == nil || container.Products() == nil ||
		container.Links() == nil || container.Marketplaces() == nil ||
		container.Badges() == nil || container.ProductBadges() == nil ||
		container.Admins() == nil {
		t.Error("repository accessor returned nil")
	}
}

func TestNewContainerRejectsInvalidConfig(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Cache.QueryTTL = 0

	if _, err := NewContainer(cfg, nil); err == nil {
		t.Error("NewContainer() accepted an invalid ttl policy")
	}
}
