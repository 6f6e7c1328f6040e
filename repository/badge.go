package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/newmo-oss/ctxtime"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-store/cache"
	"github.com/goliatone/go-catalog-store/catalog"
)

const badgeNS = "badge"

// BadgeRepository manages badges. The common subset is near-static reference
// data: it caches without expiry and is refreshed only by the explicit
// invalidation every badge write queues.
type BadgeRepository struct {
	base
}

// NewBadgeRepository builds the repository.
func NewBadgeRepository(deps Deps) *BadgeRepository {
	return &BadgeRepository{base: newBase(deps, badgeNS)}
}

// FindByID returns one badge through the entity cache.
func (r *BadgeRepository) FindByID(ctx context.Context, id int64) (*catalog.Badge, error) {
	key := r.entityKey(id)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Entity, func(ctx context.Context) (*catalog.Badge, error) {
		return r.fetch(ctx, r.Coordinator.DB(), id)
	})
}

// FindAll returns badges matching the criteria through the query cache.
func (r *BadgeRepository) FindAll(ctx context.Context, crit Criteria) ([]catalog.Badge, error) {
	key := r.queryKey("FindAll", crit.Params())
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Badge, error) {
		var badges []catalog.Badge
		q := crit.Apply(r.Coordinator.DB().NewSelect().Model(&badges))
		if err := q.Scan(ctx); err != nil {
			return nil, catalog.Infra(err, "list badges")
		}
		return badges, nil
	})
}

// FindCommon returns the common badge catalog. The set changes only through
// admin writes, so it caches forever and relies on write-path invalidation
// instead of a TTL.
func (r *BadgeRepository) FindCommon(ctx context.Context) ([]catalog.Badge, error) {
	return cache.RememberForever(ctx, r.Cache, r.commonKey(), func(ctx context.Context) ([]catalog.Badge, error) {
		var badges []catalog.Badge
		err := r.Coordinator.DB().NewSelect().
			Model(&badges).
			Where("b.common").
			Where("b.active").
			Order("b.name ASC").
			Scan(ctx)
		if err != nil {
			return nil, catalog.Infra(err, "list common badges")
		}
		return badges, nil
	})
}

// Create validates and persists a new badge.
func (r *BadgeRepository) Create(ctx context.Context, badge *catalog.Badge) (*catalog.Badge, error) {
	if err := validate(badge); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		now := ctxtime.Now(ctx)
		badge.CreatedAt = now
		badge.UpdatedAt = now
		if _, err := tx.NewInsert().Model(badge).Exec(ctx); err != nil {
			return catalog.Infra(err, "insert badge")
		}

		r.invalidateBadge(ctx, badge.ID)
		r.recordAudit(ctx, formatID(badge.ID), catalog.ActionCreate, nil, badgeSnapshot(badge))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return badge, nil
}

// Update persists badge changes, including common-flag toggles.
func (r *BadgeRepository) Update(ctx context.Context, badge *catalog.Badge) (*catalog.Badge, error) {
	if err := validate(badge); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, badge.ID)
		if err != nil {
			return err
		}

		badge.CreatedAt = current.CreatedAt
		badge.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(badge).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update badge")
		}

		r.invalidateBadge(ctx, badge.ID)
		r.recordAudit(ctx, formatID(badge.ID), catalog.ActionUpdate, badgeSnapshot(current), badgeSnapshot(badge))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return badge, nil
}

// Archive soft-deletes a badge. Refused while the badge is still attached
// to active products; the count reads fresh state inside the transaction.
func (r *BadgeRepository) Archive(ctx context.Context, id int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, id)
		if err != nil {
			return err
		}

		attached, err := tx.NewSelect().
			Model((*catalog.ProductBadge)(nil)).
			Join("JOIN products AS p ON p.id = pb.product_id").
			Where("pb.badge_id = ?", id).
			Where("p.active").
			Where("p.deleted_at IS NULL").
			Count(ctx)
		if err != nil {
			return catalog.Infra(err, "count badge attachments")
		}
		if attached > 0 {
			return catalog.Domain("badge is still in use",
				fmt.Sprintf("badge is attached to %d active products", attached))
		}

		if _, err := tx.NewDelete().Model((*catalog.Badge)(nil)).Where("b.id = ?", id).Exec(ctx); err != nil {
			return catalog.Infra(err, "archive badge")
		}

		r.invalidateBadge(ctx, id)
		r.recordAudit(ctx, formatID(id), catalog.ActionDelete, badgeSnapshot(current), nil)
		return nil
	})
}

// Restore brings an archived badge back.
func (r *BadgeRepository) Restore(ctx context.Context, id int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		badge := new(catalog.Badge)
		err := tx.NewSelect().Model(badge).Where("b.id = ?", id).WhereDeleted().Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return catalog.NotFound("badge", id)
			}
			return catalog.Infra(err, "load badge")
		}

		_, err = tx.NewUpdate().
			Model((*catalog.Badge)(nil)).
			Set("deleted_at = NULL").
			Set("updated_at = ?", ctxtime.Now(ctx)).
			Where("b.id = ?", id).
			WhereAllWithDeleted().
			Exec(ctx)
		if err != nil {
			return catalog.Infra(err, "restore badge")
		}

		r.invalidateBadge(ctx, id)
		r.recordAudit(ctx, formatID(id), catalog.ActionRestore, nil, badgeSnapshot(badge))
		return nil
	})
}

// invalidateBadge queues the entity key, the namespace query pattern, and
// the forever-cached common catalog.
func (r *BadgeRepository) invalidateBadge(ctx context.Context, id int64) {
	r.Coordinator.Invalidate(ctx, r.entityKey(id), r.queryPattern(), r.commonKey())
}

func (r *BadgeRepository) commonKey() string {
	return r.queryKey("FindCommon", nil)
}

func (r *BadgeRepository) fetch(ctx context.Context, db bun.IDB, id int64) (*catalog.Badge, error) {
	badge := new(catalog.Badge)
	if err := db.NewSelect().Model(badge).Where("b.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.NotFound("badge", id)
		}
		return nil, catalog.Infra(err, "load badge")
	}
	return badge, nil
}

func badgeSnapshot(b *catalog.Badge) map[string]any {
	return map[string]any{
		"name":   b.Name,
		"icon":   b.Icon,
		"common": b.Common,
		"active": b.Active,
	}
}
