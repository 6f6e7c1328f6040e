package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/newmo-oss/ctxtime"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-store/cache"
	"github.com/goliatone/go-catalog-store/catalog"
)

const linkNS = "link"

// LinkRepository manages affiliate links, the revenue-bearing entity. The
// persisted state is the price and the cumulative affiliate revenue; the
// commission rate is a request-scoped input that never reaches the store.
type LinkRepository struct {
	base
	productNS string
}

// NewLinkRepository builds the repository.
func NewLinkRepository(deps Deps) *LinkRepository {
	return &LinkRepository{base: newBase(deps, linkNS), productNS: productNS}
}

// FindByID returns one link through the entity cache.
func (r *LinkRepository) FindByID(ctx context.Context, id int64) (*catalog.Link, error) {
	key := r.entityKey(id)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Entity, func(ctx context.Context) (*catalog.Link, error) {
		return r.fetch(ctx, r.Coordinator.DB(), id)
	})
}

// FindByProduct returns a product's links through the query cache.
func (r *LinkRepository) FindByProduct(ctx context.Context, productID int64) ([]catalog.Link, error) {
	key := r.queryKey("FindByProduct", map[string]any{"product_id": productID})
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Link, error) {
		var links []catalog.Link
		err := r.Coordinator.DB().NewSelect().
			Model(&links).
			Where("l.product_id = ?", productID).
			Order("l.id ASC").
			Scan(ctx)
		if err != nil {
			return nil, catalog.Infra(err, "list links for product")
		}
		return links, nil
	})
}

// FindAll returns links matching the criteria through the query cache.
func (r *LinkRepository) FindAll(ctx context.Context, crit Criteria) ([]catalog.Link, error) {
	key := r.queryKey("FindAll", crit.Params())
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Link, error) {
		var links []catalog.Link
		q := crit.Apply(r.Coordinator.DB().NewSelect().Model(&links))
		if err := q.Scan(ctx); err != nil {
			return nil, catalog.Infra(err, "list links")
		}
		return links, nil
	})
}

// Create validates and persists a new link with zero accumulated revenue.
func (r *LinkRepository) Create(ctx context.Context, link *catalog.Link) (*catalog.Link, error) {
	if err := validate(link); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		now := ctxtime.Now(ctx)
		link.AffiliateRevenue = decimal.Zero
		link.CreatedAt = now
		link.UpdatedAt = now
		if _, err := tx.NewInsert().Model(link).Exec(ctx); err != nil {
			return catalog.Infra(err, "insert link")
		}

		r.invalidateEntity(ctx, link.ID)
		r.recordAudit(ctx, formatID(link.ID), catalog.ActionCreate, nil, linkSnapshot(link))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// Update persists URL/marketplace/active changes. Price and revenue have
// their own write paths.
func (r *LinkRepository) Update(ctx context.Context, link *catalog.Link) (*catalog.Link, error) {
	if err := validate(link); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, link.ID)
		if err != nil {
			return err
		}

		link.Price = current.Price
		link.AffiliateRevenue = current.AffiliateRevenue
		link.CreatedAt = current.CreatedAt
		link.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(link).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update link")
		}

		r.invalidateEntity(ctx, link.ID)
		r.recordAudit(ctx, formatID(link.ID), catalog.ActionUpdate, linkSnapshot(current), linkSnapshot(link))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// UpdatePrice sets a link's price and clears the owning product's
// needs-price-update flag in the same operation.
func (r *LinkRepository) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) (*catalog.Link, error) {
	if price.IsNegative() {
		return nil, catalog.Validation("price must not be negative")
	}

	var updated *catalog.Link
	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, id)
		if err != nil {
			return err
		}

		link := *current
		link.Price = price
		link.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(&link).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update link price")
		}

		_, err = tx.NewUpdate().
			Model((*catalog.Product)(nil)).
			Set("needs_price_update = FALSE").
			Set("updated_at = ?", link.UpdatedAt).
			Where("p.id = ?", link.ProductID).
			Exec(ctx)
		if err != nil {
			return catalog.Infra(err, "clear needs-price-update flag")
		}

		r.invalidateEntity(ctx, id)
		r.Coordinator.Invalidate(ctx,
			r.Keys.EntityKey(r.productNS, link.ProductID),
			r.Keys.QueryPattern(r.productNS),
		)
		r.recordAudit(ctx, formatID(id), catalog.ActionUpdate, linkSnapshot(current), linkSnapshot(&link))

		updated = &link
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddAffiliateRevenue derives a revenue delta from the link's current price
// and the given commission rate (nil means the default rate) and adds it to
// the accumulated total. Repeating the call adds again; the operation is
// additive on purpose. The rate itself is never persisted.
func (r *LinkRepository) AddAffiliateRevenue(ctx context.Context, id int64, rate *decimal.Decimal) (*catalog.Link, error) {
	var updated *catalog.Link
	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, id)
		if err != nil {
			return err
		}

		delta, err := catalog.RevenueDelta(current.Price, rate)
		if err != nil {
			return err
		}

		link := *current
		link.AffiliateRevenue = catalog.AccumulateRevenue(current.AffiliateRevenue, delta)
		link.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(&link).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update affiliate revenue")
		}

		r.invalidateEntity(ctx, id)
		r.recordAudit(ctx, formatID(id), catalog.ActionUpdate,
			map[string]any{"affiliate_revenue": current.AffiliateRevenue.String()},
			map[string]any{"affiliate_revenue": link.AffiliateRevenue.String()})

		updated = &link
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete soft-deletes a link.
func (r *LinkRepository) Delete(ctx context.Context, id int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.NewDelete().Model((*catalog.Link)(nil)).Where("l.id = ?", id).Exec(ctx); err != nil {
			return catalog.Infra(err, "delete link")
		}

		r.invalidateEntity(ctx, id)
		r.recordAudit(ctx, formatID(id), catalog.ActionDelete, linkSnapshot(current), nil)
		return nil
	})
}

// Restore brings a soft-deleted link back.
func (r *LinkRepository) Restore(ctx context.Context, id int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		link := new(catalog.Link)
		err := tx.NewSelect().Model(link).Where("l.id = ?", id).WhereDeleted().Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return catalog.NotFound("link", id)
			}
			return catalog.Infra(err, "load link")
		}

		_, err = tx.NewUpdate().
			Model((*catalog.Link)(nil)).
			Set("deleted_at = NULL").
			Set("updated_at = ?", ctxtime.Now(ctx)).
			Where("l.id = ?", id).
			WhereAllWithDeleted().
			Exec(ctx)
		if err != nil {
			return catalog.Infra(err, "restore link")
		}

		r.invalidateEntity(ctx, id)
		r.recordAudit(ctx, formatID(id), catalog.ActionRestore, nil, linkSnapshot(link))
		return nil
	})
}

func (r *LinkRepository) fetch(ctx context.Context, db bun.IDB, id int64) (*catalog.Link, error) {
	link := new(catalog.Link)
	if err := db.NewSelect().Model(link).Where("l.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.NotFound("link", id)
		}
		return nil, catalog.Infra(err, "load link")
	}
	return link, nil
}

func linkSnapshot(l *catalog.Link) map[string]any {
	return map[string]any{
		"product_id":        l.ProductID,
		"marketplace_id":    l.MarketplaceID,
		"url":               l.URL,
		"price":             l.Price.String(),
		"affiliate_revenue": l.AffiliateRevenue.String(),
		"active":            l.Active,
	}
}
