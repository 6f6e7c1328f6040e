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

const marketplaceNS = "marketplace"

// MarketplaceRepository manages marketplaces, flat reference data that
// changes rarely; reads cache with the reference TTL.
type MarketplaceRepository struct {
	base
}

// NewMarketplaceRepository builds the repository.
func NewMarketplaceRepository(deps Deps) *MarketplaceRepository {
	return &MarketplaceRepository{base: newBase(deps, marketplaceNS)}
}

// FindByID returns one marketplace.
func (r *MarketplaceRepository) FindByID(ctx context.Context, id int64) (*catalog.Marketplace, error) {
	key := r.entityKey(id)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Reference, func(ctx context.Context) (*catalog.Marketplace, error) {
		return r.fetch(ctx, r.Coordinator.DB(), id)
	})
}

// FindAll returns marketplaces matching the criteria.
func (r *MarketplaceRepository) FindAll(ctx context.Context, crit Criteria) ([]catalog.Marketplace, error) {
	key := r.queryKey("FindAll", crit.Params())
	return cache.Remember(ctx, r.Cache, key, r.TTL.Reference, func(ctx context.Context) ([]catalog.Marketplace, error) {
		var marketplaces []catalog.Marketplace
		q := crit.Apply(r.Coordinator.DB().NewSelect().Model(&marketplaces))
		if err := q.Scan(ctx); err != nil {
			return nil, catalog.Infra(err, "list marketplaces")
		}
		return marketplaces, nil
	})
}

// FindActive returns all active marketplaces.
func (r *MarketplaceRepository) FindActive(ctx context.Context) ([]catalog.Marketplace, error) {
	key := r.queryKey("FindActive", nil)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Reference, func(ctx context.Context) ([]catalog.Marketplace, error) {
		var marketplaces []catalog.Marketplace
		err := r.Coordinator.DB().NewSelect().
			Model(&marketplaces).
			Where("m.active").
			Order("m.name ASC").
			Scan(ctx)
		if err != nil {
			return nil, catalog.Infra(err, "list active marketplaces")
		}
		return marketplaces, nil
	})
}

// Create validates and persists a new marketplace.
func (r *MarketplaceRepository) Create(ctx context.Context, mp *catalog.Marketplace) (*catalog.Marketplace, error) {
	if err := validate(mp); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		now := ctxtime.Now(ctx)
		mp.CreatedAt = now
		mp.UpdatedAt = now
		if _, err := tx.NewInsert().Model(mp).Exec(ctx); err != nil {
			return catalog.Infra(err, "insert marketplace")
		}

		r.invalidateEntity(ctx, mp.ID)
		r.recordAudit(ctx, formatID(mp.ID), catalog.ActionCreate, nil, marketplaceSnapshot(mp))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mp, nil
}

// Update persists marketplace changes.
func (r *MarketplaceRepository) Update(ctx context.Context, mp *catalog.Marketplace) (*catalog.Marketplace, error) {
	if err := validate(mp); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, mp.ID)
		if err != nil {
			return err
		}

		mp.CreatedAt = current.CreatedAt
		mp.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(mp).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update marketplace")
		}

		r.invalidateEntity(ctx, mp.ID)
		r.recordAudit(ctx, formatID(mp.ID), catalog.ActionUpdate, marketplaceSnapshot(current), marketplaceSnapshot(mp))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mp, nil
}

// Delete soft-deletes a marketplace.
func (r *MarketplaceRepository) Delete(ctx context.Context, id int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.NewDelete().Model((*catalog.Marketplace)(nil)).Where("m.id = ?", id).Exec(ctx); err != nil {
			return catalog.Infra(err, "delete marketplace")
		}

		r.invalidateEntity(ctx, id)
		r.recordAudit(ctx, formatID(id), catalog.ActionDelete, marketplaceSnapshot(current), nil)
		return nil
	})
}

// Restore brings a soft-deleted marketplace back.
func (r *MarketplaceRepository) Restore(ctx context.Context, id int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		mp := new(catalog.Marketplace)
		err := tx.NewSelect().Model(mp).Where("m.id = ?", id).WhereDeleted().Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return catalog.NotFound("marketplace", id)
			}
			return catalog.Infra(err, "load marketplace")
		}

		_, err = tx.NewUpdate().
			Model((*catalog.Marketplace)(nil)).
			Set("deleted_at = NULL").
			Set("updated_at = ?", ctxtime.Now(ctx)).
			Where("m.id = ?", id).
			WhereAllWithDeleted().
			Exec(ctx)
		if err != nil {
			return catalog.Infra(err, "restore marketplace")
		}

		r.invalidateEntity(ctx, id)
		r.recordAudit(ctx, formatID(id), catalog.ActionRestore, nil, marketplaceSnapshot(mp))
		return nil
	})
}

func (r *MarketplaceRepository) fetch(ctx context.Context, db bun.IDB, id int64) (*catalog.Marketplace, error) {
	mp := new(catalog.Marketplace)
	if err := db.NewSelect().Model(mp).Where("m.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.NotFound("marketplace", id)
		}
		return nil, catalog.Infra(err, "load marketplace")
	}
	return mp, nil
}

func marketplaceSnapshot(m *catalog.Marketplace) map[string]any {
	return map[string]any{
		"name":   m.Name,
		"domain": m.Domain,
		"active": m.Active,
	}
}
