package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-catalog-store/catalog"
)

func TestBadgeFindCommonCachesForever(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	repo := NewBadgeRepository(core.deps)

	core.seedBadge(t, "Bestseller", true)
	core.seedBadge(t, "Obscure", false)

	common, err := repo.FindCommon(ctx)
	if err != nil {
		t.Fatalf("FindCommon() error = %v", err)
	}
	if len(common) != 1 || common[0].Name != "Bestseller" {
		t.Fatalf("FindCommon() = %+v, want only the common badge", common)
	}

	// A row added behind the repository stays invisible: the entry has no
	// TTL and only write-path invalidation refreshes it.
	raw := &catalog.Badge{Name: "Raw Common", Common: true, Active: true}
	if _, err := core.db.NewInsert().Model(raw).Exec(ctx); err != nil {
		t.Fatalf("raw insert: %v", err)
	}
	common, err = repo.FindCommon(ctx)
	if err != nil {
		t.Fatalf("FindCommon() error = %v", err)
	}
	if len(common) != 1 {
		t.Errorf("FindCommon() = %d rows, want the cached single row", len(common))
	}
}

func TestBadgeWriteInvalidatesCommonSet(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	repo := NewBadgeRepository(core.deps)

	badge := core.seedBadge(t, "Bestseller", false)
	if common, _ := repo.FindCommon(ctx); len(common) != 0 {
		t.Fatal("common warm-up failed")
	}

	promoted := *badge
	promoted.Common = true
	if _, err := repo.Update(ctx, &promoted); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	common, err := repo.FindCommon(ctx)
	if err != nil {
		t.Fatalf("FindCommon() error = %v", err)
	}
	if len(common) != 1 || common[0].ID != badge.ID {
		t.Errorf("FindCommon() = %+v after promotion", common)
	}
}

func TestBadgeArchiveGuard(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	badges := NewBadgeRepository(core.deps)
	associations := NewProductBadgeRepository(core.deps)

	cat := core.seedCategory(t, "Electronics", "electronics", nil)
	product := core.seedProduct(t, "Phone X", "phone-x", cat.ID)
	badge := core.seedBadge(t, "Bestseller", false)

	if _, err := associations.Associate(ctx, &catalog.ProductBadge{ProductID: product.ID, BadgeID: badge.ID}); err != nil {
		t.Fatalf("Associate() error = %v", err)
	}

	err := badges.Archive(ctx, badge.ID)
	if !catalog.IsDomain(err) {
		t.Fatalf("Archive() error = %v, want domain error", err)
	}
	reasons := catalog.DomainReasons(err)
	if len(reasons) != 1 || !strings.Contains(reasons[0], "1 active products") {
		t.Errorf("reasons = %v", reasons)
	}

	// Detaching the badge clears the guard.
	if err := associations.Dissociate(ctx, product.ID, badge.ID); err != nil {
		t.Fatalf("Dissociate() error = %v", err)
	}
	if err := badges.Archive(ctx, badge.ID); err != nil {
		t.Fatalf("Archive() after detach error = %v", err)
	}
	if _, err := badges.FindByID(ctx, badge.ID); !catalog.IsNotFound(err) {
		t.Errorf("FindByID(archived) error = %v, want not-found", err)
	}
}

func TestBadgeArchiveIgnoresInactiveProducts(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	badges := NewBadgeRepository(core.deps)
	associations := NewProductBadgeRepository(core.deps)
	products := NewProductRepository(core.deps)

	cat := core.seedCategory(t, "Electronics", "electronics", nil)
	product := core.seedProduct(t, "Phone X", "phone-x", cat.ID)
	badge := core.seedBadge(t, "Bestseller", false)

	if _, err := associations.Associate(ctx, &catalog.ProductBadge{ProductID: product.ID, BadgeID: badge.ID}); err != nil {
		t.Fatalf("Associate() error = %v", err)
	}
	if err := products.Deactivate(ctx, product.ID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}

	// Only attachments to active products block archiving.
	if err := badges.Archive(ctx, badge.ID); err != nil {
		t.Errorf("Archive() error = %v", err)
	}
}

func TestBadgeRestore(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	repo := NewBadgeRepository(core.deps)

	badge := core.seedBadge(t, "Seasonal", true)
	if err := repo.Archive(ctx, badge.ID); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := repo.Restore(ctx, badge.ID); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	got, err := repo.FindByID(ctx, badge.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.Name != "Seasonal" {
		t.Errorf("restored badge = %+v", got)
	}

	// Restore also refreshed the common set.
	common, err := repo.FindCommon(ctx)
	if err != nil {
		t.Fatalf("FindCommon() error = %v", err)
	}
	if len(common) != 1 {
		t.Errorf("FindCommon() = %d rows after restore, want 1", len(common))
	}
}
