package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/newmo-oss/ctxtime"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-store/cache"
	"github.com/goliatone/go-catalog-store/catalog"
)

const productBadgeNS = "product_badge"

// ProductBadgeRepository manages product-badge association rows addressed by
// the ordered (productID, badgeID) pair. Association writes never upsert:
// a duplicate Associate and a missing Dissociate are both errors.
type ProductBadgeRepository struct {
	base
}

// NewProductBadgeRepository builds the repository.
func NewProductBadgeRepository(deps Deps) *ProductBadgeRepository {
	return &ProductBadgeRepository{base: newBase(deps, productBadgeNS)}
}

// ParseCompositeID splits a "productID_badgeID" string back into the pair.
// Both components must be positive integers.
func ParseCompositeID(compositeID string) (productID, badgeID int64, err error) {
	parts := strings.Split(compositeID, "_")
	if len(parts) != 2 {
		return 0, 0, catalog.Validationf("malformed composite id %q", compositeID)
	}

	productID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil || productID < 1 {
		return 0, 0, catalog.Validationf("malformed composite id %q: bad product id", compositeID)
	}
	badgeID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || badgeID < 1 {
		return 0, 0, catalog.Validationf("malformed composite id %q: bad badge id", compositeID)
	}
	return productID, badgeID, nil
}

// FindByCompositeKey returns one association row through the entity cache.
func (r *ProductBadgeRepository) FindByCompositeKey(ctx context.Context, productID, badgeID int64) (*catalog.ProductBadge, error) {
	key := r.Keys.CompositeEntityKey(r.ns, productID, badgeID)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Entity, func(ctx context.Context) (*catalog.ProductBadge, error) {
		return r.fetch(ctx, r.Coordinator.DB(), productID, badgeID)
	})
}

// FindByID resolves a serialized composite id and delegates to
// FindByCompositeKey.
func (r *ProductBadgeRepository) FindByID(ctx context.Context, compositeID string) (*catalog.ProductBadge, error) {
	productID, badgeID, err := ParseCompositeID(compositeID)
	if err != nil {
		return nil, err
	}
	return r.FindByCompositeKey(ctx, productID, badgeID)
}

// AssociationExists reads fresh state; it backs write-path guards and must
// not be satisfied by a stale cache entry.
func (r *ProductBadgeRepository) AssociationExists(ctx context.Context, productID, badgeID int64) (bool, error) {
	exists, err := r.freshDB(ctx).NewSelect().
		Model((*catalog.ProductBadge)(nil)).
		Where("pb.product_id = ?", productID).
		Where("pb.badge_id = ?", badgeID).
		Exists(ctx)
	if err != nil {
		return false, catalog.Infra(err, "check association")
	}
	return exists, nil
}

// BadgesForProduct returns the badges attached to one product.
func (r *ProductBadgeRepository) BadgesForProduct(ctx context.Context, productID int64) ([]catalog.Badge, error) {
	key := r.queryKey("BadgesForProduct", map[string]any{"product_id": productID})
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Badge, error) {
		var badges []catalog.Badge
		err := r.Coordinator.DB().NewSelect().
			Model(&badges).
			Join("JOIN product_badges AS pb ON pb.badge_id = b.id").
			Where("pb.product_id = ?", productID).
			Order("b.name ASC").
			Scan(ctx)
		if err != nil {
			return nil, catalog.Infra(err, "list badges for product")
		}
		return badges, nil
	})
}

// ProductsForBadge returns the products a badge is attached to.
func (r *ProductBadgeRepository) ProductsForBadge(ctx context.Context, badgeID int64) ([]catalog.Product, error) {
	key := r.queryKey("ProductsForBadge", map[string]any{"badge_id": badgeID})
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Product, error) {
		var products []catalog.Product
		err := r.Coordinator.DB().NewSelect().
			Model(&products).
			Join("JOIN product_badges AS pb ON pb.product_id = p.id").
			Where("pb.badge_id = ?", badgeID).
			Order("p.name ASC").
			Scan(ctx)
		if err != nil {
			return nil, catalog.Infra(err, "list products for badge")
		}
		return products, nil
	})
}

// Associate creates the association. A row that already exists is a domain
// conflict, never a silent upsert.
func (r *ProductBadgeRepository) Associate(ctx context.Context, pb *catalog.ProductBadge) (*catalog.ProductBadge, error) {
	if err := validate(pb); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		exists, err := r.AssociationExists(ctx, pb.ProductID, pb.BadgeID)
		if err != nil {
			return err
		}
		if exists {
			return catalog.Domain("association already exists",
				"badge "+strconv.FormatInt(pb.BadgeID, 10)+" is already assigned to product "+strconv.FormatInt(pb.ProductID, 10))
		}

		pb.CreatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewInsert().Model(pb).Exec(ctx); err != nil {
			return catalog.Infra(err, "insert association")
		}

		r.invalidatePair(ctx, pb.ProductID, pb.BadgeID)
		r.recordAudit(ctx, cache.FormatCompositeID(pb.ProductID, pb.BadgeID), catalog.ActionAssociate, nil, associationSnapshot(pb))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pb, nil
}

// Dissociate removes the association; a missing row is a not-found error.
func (r *ProductBadgeRepository) Dissociate(ctx context.Context, productID, badgeID int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, productID, badgeID)
		if err != nil {
			return err
		}

		_, err = tx.NewDelete().
			Model((*catalog.ProductBadge)(nil)).
			Where("pb.product_id = ?", productID).
			Where("pb.badge_id = ?", badgeID).
			Exec(ctx)
		if err != nil {
			return catalog.Infra(err, "delete association")
		}

		r.invalidatePair(ctx, productID, badgeID)
		r.recordAudit(ctx, cache.FormatCompositeID(productID, badgeID), catalog.ActionDissociate, associationSnapshot(current), nil)
		return nil
	})
}

// SyncFor replaces a product's badge set wholesale: every existing
// association is removed, then the given badges are attached, all in one
// operation so readers never observe a partially synced set.
func (r *ProductBadgeRepository) SyncFor(ctx context.Context, productID int64, badgeIDs []int64, assignedBy *string) error {
	seen := make(map[int64]struct{}, len(badgeIDs))
	for _, badgeID := range badgeIDs {
		if badgeID < 1 {
			return catalog.Validationf("invalid badge id %d", badgeID)
		}
		if _, dup := seen[badgeID]; dup {
			return catalog.Validationf("duplicate badge id %d", badgeID)
		}
		seen[badgeID] = struct{}{}
	}

	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		var previous []catalog.ProductBadge
		err := tx.NewSelect().
			Model(&previous).
			Where("pb.product_id = ?", productID).
			Scan(ctx)
		if err != nil {
			return catalog.Infra(err, "load associations")
		}

		if _, err := tx.NewDelete().
			Model((*catalog.ProductBadge)(nil)).
			Where("pb.product_id = ?", productID).
			Exec(ctx); err != nil {
			return catalog.Infra(err, "clear associations")
		}

		now := ctxtime.Now(ctx)
		for _, badgeID := range badgeIDs {
			pb := &catalog.ProductBadge{
				ProductID:  productID,
				BadgeID:    badgeID,
				AssignedBy: assignedBy,
				CreatedAt:  now,
			}
			if _, err := tx.NewInsert().Model(pb).Exec(ctx); err != nil {
				return catalog.Infra(err, "insert association")
			}
		}

		for _, prev := range previous {
			r.invalidatePair(ctx, productID, prev.BadgeID)
		}
		for _, badgeID := range badgeIDs {
			r.invalidatePair(ctx, productID, badgeID)
		}

		r.recordAudit(ctx, strconv.FormatInt(productID, 10), catalog.ActionSync,
			map[string]any{"badge_ids": badgeIDSet(previous)},
			map[string]any{"badge_ids": badgeIDs})
		return nil
	})
}

// invalidatePair queues the association's composite entity key plus the
// namespace query pattern covering both per-product and per-badge listings.
func (r *ProductBadgeRepository) invalidatePair(ctx context.Context, productID, badgeID int64) {
	r.Coordinator.Invalidate(ctx,
		r.Keys.CompositeEntityKey(r.ns, productID, badgeID),
		r.queryPattern(),
	)
}

func (r *ProductBadgeRepository) fetch(ctx context.Context, db bun.IDB, productID, badgeID int64) (*catalog.ProductBadge, error) {
	pb := new(catalog.ProductBadge)
	err := db.NewSelect().
		Model(pb).
		Where("pb.product_id = ?", productID).
		Where("pb.badge_id = ?", badgeID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.NotFound("product_badge", cache.FormatCompositeID(productID, badgeID))
		}
		return nil, catalog.Infra(err, "load association")
	}
	return pb, nil
}

func associationSnapshot(pb *catalog.ProductBadge) map[string]any {
	snapshot := map[string]any{
		"product_id": pb.ProductID,
		"badge_id":   pb.BadgeID,
	}
	if pb.AssignedBy != nil {
		snapshot["assigned_by"] = *pb.AssignedBy
	}
	return snapshot
}

func badgeIDSet(rows []catalog.ProductBadge) []int64 {
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.BadgeID
	}
	return ids
}
