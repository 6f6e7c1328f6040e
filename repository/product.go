package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/newmo-oss/ctxtime"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-store/cache"
	"github.com/goliatone/go-catalog-store/catalog"
)

const productNS = "product"

// ProductRepository manages products. The needs-validation and
// needs-price-update work queues are flag listings that churn constantly,
// so they cache with the volatile TTL instead of the query TTL.
type ProductRepository struct {
	base
}

// NewProductRepository builds the repository.
func NewProductRepository(deps Deps) *ProductRepository {
	return &ProductRepository{base: newBase(deps, productNS)}
}

// FindByID returns one product through the entity cache.
func (r *ProductRepository) FindByID(ctx context.Context, id int64) (*catalog.Product, error) {
	key := r.entityKey(id)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Entity, func(ctx context.Context) (*catalog.Product, error) {
		return r.fetch(ctx, r.Coordinator.DB(), id)
	})
}

// FindAll returns products matching the criteria through the query cache.
func (r *ProductRepository) FindAll(ctx context.Context, crit Criteria) ([]catalog.Product, error) {
	key := r.queryKey("FindAll", crit.Params())
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Product, error) {
		var products []catalog.Product
		q := crit.Apply(r.Coordinator.DB().NewSelect().Model(&products))
		if err := q.Scan(ctx); err != nil {
			return nil, catalog.Infra(err, "list products")
		}
		return products, nil
	})
}

// FindByCategory returns a category's active products.
func (r *ProductRepository) FindByCategory(ctx context.Context, categoryID int64) ([]catalog.Product, error) {
	key := r.queryKey("FindByCategory", map[string]any{"category_id": categoryID})
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Product, error) {
		var products []catalog.Product
		err := r.Coordinator.DB().NewSelect().
			Model(&products).
			Where("p.category_id = ?", categoryID).
			Order("p.name ASC").
			Scan(ctx)
		if err != nil {
			return nil, catalog.Infra(err, "list products by category")
		}
		return products, nil
	})
}

// FindNeedingValidation is the validation work queue; cached with the
// volatile TTL since the set shrinks as operators work through it.
func (r *ProductRepository) FindNeedingValidation(ctx context.Context) ([]catalog.Product, error) {
	key := r.queryKey("FindNeedingValidation", nil)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Volatile, func(ctx context.Context) ([]catalog.Product, error) {
		return r.flagged(ctx, "p.needs_validation")
	})
}

// FindNeedingPriceUpdate is the price-refresh work queue; volatile TTL for
// the same reason as FindNeedingValidation.
func (r *ProductRepository) FindNeedingPriceUpdate(ctx context.Context) ([]catalog.Product, error) {
	key := r.queryKey("FindNeedingPriceUpdate", nil)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Volatile, func(ctx context.Context) ([]catalog.Product, error) {
		return r.flagged(ctx, "p.needs_price_update")
	})
}

func (r *ProductRepository) flagged(ctx context.Context, column string) ([]catalog.Product, error) {
	var products []catalog.Product
	err := r.Coordinator.DB().NewSelect().
		Model(&products).
		Where(column).
		Where("p.active").
		Order("p.updated_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, catalog.Infra(err, "list flagged products")
	}
	return products, nil
}

// Create validates and persists a new product.
func (r *ProductRepository) Create(ctx context.Context, product *catalog.Product) (*catalog.Product, error) {
	if err := validate(product); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		now := ctxtime.Now(ctx)
		product.CreatedAt = now
		product.UpdatedAt = now
		if _, err := tx.NewInsert().Model(product).Exec(ctx); err != nil {
			return catalog.Infra(err, "insert product")
		}

		r.invalidateEntity(ctx, product.ID)
		r.recordAudit(ctx, formatID(product.ID), catalog.ActionCreate, nil, productSnapshot(product))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Update persists product changes, including the work-queue flags.
func (r *ProductRepository) Update(ctx context.Context, product *catalog.Product) (*catalog.Product, error) {
	if err := validate(product); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, product.ID)
		if err != nil {
			return err
		}

		product.CreatedAt = current.CreatedAt
		product.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(product).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update product")
		}

		r.invalidateEntity(ctx, product.ID)
		r.recordAudit(ctx, formatID(product.ID), catalog.ActionUpdate, productSnapshot(current), productSnapshot(product))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Activate marks a product active.
func (r *ProductRepository) Activate(ctx context.Context, id int64) error {
	return r.setActive(ctx, id, true)
}

// Deactivate marks a product inactive.
func (r *ProductRepository) Deactivate(ctx context.Context, id int64) error {
	return r.setActive(ctx, id, false)
}

func (r *ProductRepository) setActive(ctx context.Context, id int64, active bool) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Active == active {
			return nil
		}

		updated := *current
		updated.Active = active
		updated.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(&updated).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update product active state")
		}

		action := catalog.ActionDeactivate
		if active {
			action = catalog.ActionActivate
		}
		r.invalidateEntity(ctx, id)
		r.recordAudit(ctx, formatID(id), action, productSnapshot(current), productSnapshot(&updated))
		return nil
	})
}

// Delete soft-deletes a product.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.NewDelete().Model((*catalog.Product)(nil)).Where("p.id = ?", id).Exec(ctx); err != nil {
			return catalog.Infra(err, "delete product")
		}

		r.invalidateEntity(ctx, id)
		r.recordAudit(ctx, formatID(id), catalog.ActionDelete, productSnapshot(current), nil)
		return nil
	})
}

// Restore brings a soft-deleted product back.
func (r *ProductRepository) Restore(ctx context.Context, id int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		product := new(catalog.Product)
		err := tx.NewSelect().Model(product).Where("p.id = ?", id).WhereDeleted().Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return catalog.NotFound("product", id)
			}
			return catalog.Infra(err, "load product")
		}

		_, err = tx.NewUpdate().
			Model((*catalog.Product)(nil)).
			Set("deleted_at = NULL").
			Set("updated_at = ?", ctxtime.Now(ctx)).
			Where("p.id = ?", id).
			WhereAllWithDeleted().
			Exec(ctx)
		if err != nil {
			return catalog.Infra(err, "restore product")
		}

		r.invalidateEntity(ctx, id)
		r.recordAudit(ctx, formatID(id), catalog.ActionRestore, nil, productSnapshot(product))
		return nil
	})
}

func (r *ProductRepository) fetch(ctx context.Context, db bun.IDB, id int64) (*catalog.Product, error) {
	product := new(catalog.Product)
	if err := db.NewSelect().Model(product).Where("p.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.NotFound("product", id)
		}
		return nil, catalog.Infra(err, "load product")
	}
	return product, nil
}

func productSnapshot(p *catalog.Product) map[string]any {
	return map[string]any{
		"name":               p.Name,
		"slug":               p.Slug,
		"category_id":        p.CategoryID,
		"active":             p.Active,
		"needs_validation":   p.NeedsValidation,
		"needs_price_update": p.NeedsPriceUpdate,
	}
}
