package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-store/audit"
	"github.com/goliatone/go-catalog-store/cache"
	"github.com/goliatone/go-catalog-store/catalog"
	"github.com/goliatone/go-catalog-store/internal/cacheinfra"
	"github.com/goliatone/go-catalog-store/pkg/testsupport"
	"github.com/goliatone/go-catalog-store/txn"
)

type testCore struct {
	db    *bun.DB
	store *cacheinfra.Memory
	deps  Deps
	audit *audit.Store
}

func newTestCore(t *testing.T) *testCore {
	t.Helper()

	db := testsupport.NewDB(t)
	store := cacheinfra.NewMemory(time.Minute)
	t.Cleanup(store.Close)

	auditStore := audit.NewStore(db)
	coordinator := txn.New(db, store, auditStore, nil)

	return &testCore{
		db:    db,
		store: store,
		audit: auditStore,
		deps: Deps{
			Coordinator: coordinator,
			Cache:       cache.New(store, nil),
			Keys:        cache.NewKeyDeriver(),
			Recorder:    audit.NewRecorder(),
			TTL:         cache.DefaultTTLPolicy(),
		},
	}
}

func (c *testCore) seedCategory(t *testing.T, name, slug string, parentID *int64) *catalog.Category {
	t.Helper()
	cat, err := NewCategoryRepository(c.deps).Create(context.Background(), &catalog.Category{
		Name: name, Slug: slug, ParentID: parentID, Active: true,
	})
	if err != nil {
		t.Fatalf("seed category %s: %v", slug, err)
	}
	return cat
}

func (c *testCore) seedProduct(t *testing.T, name, slug string, categoryID int64) *catalog.Product {
	t.Helper()
	product, err := NewProductRepository(c.deps).Create(context.Background(), &catalog.Product{
		Name: name, Slug: slug, CategoryID: categoryID, Active: true,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", slug, err)
	}
	return product
}

func (c *testCore) seedMarketplace(t *testing.T, name, domain string) *catalog.Marketplace {
	t.Helper()
	mp, err := NewMarketplaceRepository(c.deps).Create(context.Background(), &catalog.Marketplace{
		Name: name, Domain: domain, Active: true,
	})
	if err != nil {
		t.Fatalf("seed marketplace %s: %v", domain, err)
	}
	return mp
}

func (c *testCore) seedLink(t *testing.T, productID, marketplaceID int64, price string) *catalog.Link {
	t.Helper()
	link, err := NewLinkRepository(c.deps).Create(context.Background(), &catalog.Link{
		ProductID:     productID,
		MarketplaceID: marketplaceID,
		URL:           "https://shop.example.com/item",
		Price:         decimal.RequireFromString(price),
		Active:        true,
	})
	if err != nil {
		t.Fatalf("seed link: %v", err)
	}
	return link
}

func (c *testCore) seedBadge(t *testing.T, name string, common bool) *catalog.Badge {
	t.Helper()
	badge, err := NewBadgeRepository(c.deps).Create(context.Background(), &catalog.Badge{
		Name: name, Common: common, Active: true,
	})
	if err != nil {
		t.Fatalf("seed badge %s: %v", name, err)
	}
	return badge
}

func (c *testCore) seedAdmin(t *testing.T, email, role string) *catalog.Admin {
	t.Helper()
	admin, err := NewAdminRepository(c.deps).Create(context.Background(), &catalog.Admin{
		Email: email, Name: "Operator", Role: role, Active: true,
	})
	if err != nil {
		t.Fatalf("seed admin %s: %v", email, err)
	}
	return admin
}

func ptr[T any](v T) *T { return &v }
