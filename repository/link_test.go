package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/goliatone/go-catalog-store/catalog"
)

func TestLinkAddAffiliateRevenue(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	repo := NewLinkRepository(core.deps)

	cat := core.seedCategory(t, "Electronics", "electronics", nil)
	product := core.seedProduct(t, "Phone X", "phone-x", cat.ID)
	mp := core.seedMarketplace(t, "Acme", "acme.example.com")
	link := core.seedLink(t, product.ID, mp.ID, "100000.00")

	rate := decimal.NewFromInt(5)
	accrued, err := repo.AddAffiliateRevenue(ctx, link.ID, &rate)
	if err != nil {
		t.Fatalf("AddAffiliateRevenue() error = %v", err)
	}
	if got := accrued.AffiliateRevenue.StringFixed(2); got != "5000.00" {
		t.Errorf("revenue after first accrual = %s, want 5000.00", got)
	}

	// A second event accumulates rather than overwriting.
	accrued, err = repo.AddAffiliateRevenue(ctx, link.ID, &rate)
	if err != nil {
		t.Fatalf("AddAffiliateRevenue() error = %v", err)
	}
	if got := accrued.AffiliateRevenue.StringFixed(2); got != "10000.00" {
		t.Errorf("revenue after second accrual = %s, want 10000.00", got)
	}

	// The cached entity reflects the committed total.
	cached, err := repo.FindByID(ctx, link.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got := cached.AffiliateRevenue.StringFixed(2); got != "10000.00" {
		t.Errorf("cached revenue = %s, want 10000.00", got)
	}
}

func TestLinkAddAffiliateRevenueDefaultRate(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	repo := NewLinkRepository(core.deps)

	cat := core.seedCategory(t, "Electronics", "electronics", nil)
	product := core.seedProduct(t, "Phone X", "phone-x", cat.ID)
	mp := core.seedMarketplace(t, "Acme", "acme.example.com")
	link := core.seedLink(t, product.ID, mp.ID, "100000.00")

	accrued, err := repo.AddAffiliateRevenue(ctx, link.ID, nil)
	if err != nil {
		t.Fatalf("AddAffiliateRevenue() error = %v", err)
	}
	if got := accrued.AffiliateRevenue.StringFixed(2); got != "2000.00" {
		t.Errorf("revenue with default rate = %s, want 2000.00", got)
	}
}

func TestLinkAddAffiliateRevenueRejectsBadRate(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	repo := NewLinkRepository(core.deps)

	cat := core.seedCategory(t, "Electronics", "electronics", nil)
	product := core.seedProduct(t, "Phone X", "phone-x", cat.ID)
	mp := core.seedMarketplace(t, "Acme", "acme.example.com")
	link := core.seedLink(t, product.ID, mp.ID, "100.00")

	rate := decimal.NewFromInt(101)
	if _, err := repo.AddAffiliateRevenue(ctx, link.ID, &rate); !catalog.IsValidation(err) {
		t.Fatalf("AddAffiliateRevenue() error = %v, want validation error", err)
	}

	// The rejected accrual rolled back; the total is untouched.
	got, err := repo.FindByID(ctx, link.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if !got.AffiliateRevenue.IsZero() {
		t.Errorf("revenue = %s after rejected accrual, want 0", got.AffiliateRevenue)
	}
}

func TestLinkUpdatePriceClearsProductFlag(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	links := NewLinkRepository(core.deps)
	products := NewProductRepository(core.deps)

	cat := core.seedCategory(t, "Electronics", "electronics", nil)
	product, err := products.Create(ctx, &catalog.Product{
		Name: "Phone X", Slug: "phone-x", CategoryID: cat.ID,
		Active: true, NeedsPriceUpdate: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	mp := core.seedMarketplace(t, "Acme", "acme.example.com")
	link := core.seedLink(t, product.ID, mp.ID, "99.90")

	// Warm the product cache so a missed invalidation would show.
	if _, err := products.FindByID(ctx, product.ID); err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}

	updated, err := links.UpdatePrice(ctx, link.ID, decimal.RequireFromString("89.90"))
	if err != nil {
		t.Fatalf("UpdatePrice() error = %v", err)
	}
	if got := updated.Price.StringFixed(2); got != "89.90" {
		t.Errorf("price = %s, want 89.90", got)
	}

	fresh, err := products.FindByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if fresh.NeedsPriceUpdate {
		t.Error("needs-price-update flag not cleared")
	}
}

func TestLinkUpdatePriceRejectsNegative(t *testing.T) {
	core := newTestCore(t)
	repo := NewLinkRepository(core.deps)

	_, err := repo.UpdatePrice(context.Background(), 1, decimal.RequireFromString("-1"))
	if !catalog.IsValidation(err) {
		t.Errorf("UpdatePrice() error = %v, want validation error", err)
	}
}

func TestLinkFindByProduct(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	repo := NewLinkRepository(core.deps)

	cat := core.seedCategory(t, "Electronics", "electronics", nil)
	product := core.seedProduct(t, "Phone X", "phone-x", cat.ID)
	other := core.seedProduct(t, "Phone Y", "phone-y", cat.ID)
	mp := core.seedMarketplace(t, "Acme", "acme.example.com")
	core.seedLink(t, product.ID, mp.ID, "10.00")
	core.seedLink(t, other.ID, mp.ID, "20.00")

	got, err := repo.FindByProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("FindByProduct() error = %v", err)
	}
	if len(got) != 1 || got[0].ProductID != product.ID {
		t.Errorf("FindByProduct() = %+v", got)
	}
}

func TestLinkNotFound(t *testing.T) {
	core := newTestCore(t)
	repo := NewLinkRepository(core.deps)

	if _, err := repo.FindByID(context.Background(), 404); !catalog.IsNotFound(err) {
		t.Errorf("FindByID() error = %v, want not-found", err)
	}
}
