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

const categoryNS = "category"

// CategoryRepository manages the self-referencing category tree. Structural
// writes cascade invalidation to the node itself, both affected parents'
// children lists, and the tree/list aggregates, all gated on commit.
type CategoryRepository struct {
	base
}

// NewCategoryRepository builds the repository.
func NewCategoryRepository(deps Deps) *CategoryRepository {
	return &CategoryRepository{base: newBase(deps, categoryNS)}
}

// CategoryNode is one node of the assembled tree.
type CategoryNode struct {
	catalog.Category
	Children []*CategoryNode
}

// FindByID returns one category through the entity cache.
func (r *CategoryRepository) FindByID(ctx context.Context, id int64) (*catalog.Category, error) {
	key := r.entityKey(id)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Entity, func(ctx context.Context) (*catalog.Category, error) {
		return r.fetch(ctx, r.Coordinator.DB(), id, VisibleActive)
	})
}

// FindAll returns categories matching the criteria through the query cache.
func (r *CategoryRepository) FindAll(ctx context.Context, crit Criteria) ([]catalog.Category, error) {
	key := r.queryKey("FindAll", crit.Params())
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Category, error) {
		var categories []catalog.Category
		q := crit.Apply(r.Coordinator.DB().NewSelect().Model(&categories))
		if err := q.Scan(ctx); err != nil {
			return nil, catalog.Infra(err, "list categories")
		}
		return categories, nil
	})
}

// FindSubCategories returns the direct children of parentID. The cache key
// for this query is exactly the children-list key invalidated on
// structural change.
func (r *CategoryRepository) FindSubCategories(ctx context.Context, parentID int64) ([]catalog.Category, error) {
	key := r.childrenKey(parentID)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Category, error) {
		var categories []catalog.Category
		err := r.Coordinator.DB().NewSelect().
			Model(&categories).
			Where("c.parent_id = ?", parentID).
			Order("name ASC").
			Scan(ctx)
		if err != nil {
			return nil, catalog.Infra(err, "list subcategories")
		}
		return categories, nil
	})
}

// FindActiveCategories returns all active categories.
func (r *CategoryRepository) FindActiveCategories(ctx context.Context) ([]catalog.Category, error) {
	key := r.queryKey("FindActiveCategories", nil)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Category, error) {
		var categories []catalog.Category
		err := r.Coordinator.DB().NewSelect().
			Model(&categories).
			Where("c.active").
			Order("name ASC").
			Scan(ctx)
		if err != nil {
			return nil, catalog.Infra(err, "list active categories")
		}
		return categories, nil
	})
}

// FindTree returns the full active tree assembled from the flat listing.
func (r *CategoryRepository) FindTree(ctx context.Context) ([]*CategoryNode, error) {
	key := r.queryKey("FindTree", nil)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]*CategoryNode, error) {
		var categories []catalog.Category
		err := r.Coordinator.DB().NewSelect().
			Model(&categories).
			Where("c.active").
			Order("name ASC").
			Scan(ctx)
		if err != nil {
			return nil, catalog.Infra(err, "load category tree")
		}
		return assembleTree(categories), nil
	})
}

// Create validates and persists a new node.
func (r *CategoryRepository) Create(ctx context.Context, cat *catalog.Category) (*catalog.Category, error) {
	if err := validate(cat); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		if cat.ParentID != nil {
			if _, err := r.fetchTx(ctx, tx, *cat.ParentID); err != nil {
				return err
			}
		}

		now := ctxtime.Now(ctx)
		cat.CreatedAt = now
		cat.UpdatedAt = now
		if _, err := tx.NewInsert().Model(cat).Exec(ctx); err != nil {
			return catalog.Infra(err, "insert category")
		}

		r.queueStructural(ctx, cat, nil, false)
		r.recordAudit(ctx, formatID(cat.ID), catalog.ActionCreate, nil, categorySnapshot(cat))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// Update persists name/slug/parent/active changes. Reparenting invalidates
// both the old and the new parent's children list.
func (r *CategoryRepository) Update(ctx context.Context, cat *catalog.Category) (*catalog.Category, error) {
	if err := validate(cat); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetchTx(ctx, tx, cat.ID)
		if err != nil {
			return err
		}

		if cat.ParentID != nil {
			if *cat.ParentID == cat.ID {
				return catalog.Validation("category cannot be its own parent")
			}
			if _, err := r.fetchTx(ctx, tx, *cat.ParentID); err != nil {
				return err
			}
		}

		// Deactivating through Update is held to the same precondition as
		// Deactivate.
		if current.Active && !cat.Active {
			if err := r.guardDeactivation(ctx, tx, cat.ID); err != nil {
				return err
			}
		}

		cat.CreatedAt = current.CreatedAt
		cat.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(cat).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update category")
		}

		r.queueStructural(ctx, cat, current.ParentID, parentChanged(current.ParentID, cat.ParentID))
		r.recordAudit(ctx, formatID(cat.ID), catalog.ActionUpdate, categorySnapshot(current), categorySnapshot(cat))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// Delete soft-deletes a node.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetchTx(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.NewDelete().Model((*catalog.Category)(nil)).Where("c.id = ?", id).Exec(ctx); err != nil {
			return catalog.Infra(err, "delete category")
		}

		r.queueStructural(ctx, current, current.ParentID, false)
		r.recordAudit(ctx, formatID(id), catalog.ActionDelete, categorySnapshot(current), nil)
		return nil
	})
}

// Restore brings a soft-deleted node back.
func (r *CategoryRepository) Restore(ctx context.Context, id int64) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, id, VisibleDeleted)
		if err != nil {
			return err
		}

		_, err = tx.NewUpdate().
			Model((*catalog.Category)(nil)).
			Set("deleted_at = NULL").
			Set("updated_at = ?", ctxtime.Now(ctx)).
			Where("c.id = ?", id).
			WhereAllWithDeleted().
			Exec(ctx)
		if err != nil {
			return catalog.Infra(err, "restore category")
		}

		r.queueStructural(ctx, current, current.ParentID, false)
		r.recordAudit(ctx, formatID(id), catalog.ActionRestore, nil, categorySnapshot(current))
		return nil
	})
}

// Activate marks a node active.
func (r *CategoryRepository) Activate(ctx context.Context, id int64) error {
	return r.setActive(ctx, id, true)
}

// Deactivate marks a node inactive. Refused while the node still has
// active children or active linked products; the precondition reads fresh
// state because it guards a safety-critical decision.
func (r *CategoryRepository) Deactivate(ctx context.Context, id int64) error {
	return r.setActive(ctx, id, false)
}

func (r *CategoryRepository) setActive(ctx context.Context, id int64, active bool) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetchTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Active == active {
			return nil
		}

		if !active {
			if err := r.guardDeactivation(ctx, tx, id); err != nil {
				return err
			}
		}

		updated := *current
		updated.Active = active
		updated.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(&updated).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update category active state")
		}

		action := catalog.ActionDeactivate
		if active {
			action = catalog.ActionActivate
		}
		r.queueStructural(ctx, &updated, updated.ParentID, false)
		r.recordAudit(ctx, formatID(id), action, categorySnapshot(current), categorySnapshot(&updated))
		return nil
	})
}

func (r *CategoryRepository) guardDeactivation(ctx context.Context, tx bun.IDB, id int64) error {
	var reasons []string

	children, err := tx.NewSelect().
		Model((*catalog.Category)(nil)).
		Where("c.parent_id = ?", id).
		Where("c.active").
		Count(ctx)
	if err != nil {
		return catalog.Infra(err, "count active children")
	}
	if children > 0 {
		reasons = append(reasons, fmt.Sprintf("cannot deactivate: %d active children", children))
	}

	products, err := tx.NewSelect().
		Model((*catalog.Product)(nil)).
		Where("p.category_id = ?", id).
		Where("p.active").
		Count(ctx)
	if err != nil {
		return catalog.Infra(err, "count active products")
	}
	if products > 0 {
		reasons = append(reasons, fmt.Sprintf("cannot deactivate: %d active products", products))
	}

	if len(reasons) > 0 {
		return catalog.Domain("category has active dependents", reasons...)
	}
	return nil
}

// queueStructural queues the cascade for any structural change: the node's
// entity key, the previous parent's children list when the node moved, the
// current parent's children list, and the namespace query pattern covering
// tree and list aggregates.
func (r *CategoryRepository) queueStructural(ctx context.Context, cat *catalog.Category, oldParentID *int64, moved bool) {
	targets := []string{r.entityKey(cat.ID)}
	if moved && oldParentID != nil {
		targets = append(targets, r.childrenKey(*oldParentID))
	}
	if cat.ParentID != nil {
		targets = append(targets, r.childrenKey(*cat.ParentID))
	}
	targets = append(targets, r.queryPattern())
	r.Coordinator.Invalidate(ctx, targets...)
}

func (r *CategoryRepository) childrenKey(parentID int64) string {
	return r.queryKey("FindSubCategories", map[string]any{"parent_id": parentID})
}

func (r *CategoryRepository) fetch(ctx context.Context, db bun.IDB, id int64, visibility Visibility) (*catalog.Category, error) {
	cat := new(catalog.Category)
	q := Criteria{Visibility: visibility}.Apply(db.NewSelect().Model(cat)).Where("c.id = ?", id)
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.NotFound("category", id)
		}
		return nil, catalog.Infra(err, "load category")
	}
	return cat, nil
}

// fetchTx reads fresh state inside the open transaction; guards never
// consult the cache.
func (r *CategoryRepository) fetchTx(ctx context.Context, tx bun.IDB, id int64) (*catalog.Category, error) {
	return r.fetch(ctx, tx, id, VisibleActive)
}

func assembleTree(categories []catalog.Category) []*CategoryNode {
	nodes := make(map[int64]*CategoryNode, len(categories))
	for i := range categories {
		nodes[categories[i].ID] = &CategoryNode{Category: categories[i]}
	}

	var roots []*CategoryNode
	for _, cat := range categories {
		node := nodes[cat.ID]
		if cat.ParentID != nil {
			if parent, ok := nodes[*cat.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

func parentChanged(oldParent, newParent *int64) bool {
	if oldParent == nil && newParent == nil {
		return false
	}
	if oldParent == nil || newParent == nil {
		return true
	}
	return *oldParent != *newParent
}

func categorySnapshot(c *catalog.Category) map[string]any {
	snapshot := map[string]any{
		"name":   c.Name,
		"slug":   c.Slug,
		"active": c.Active,
	}
	if c.ParentID != nil {
		snapshot["parent_id"] = *c.ParentID
	}
	return snapshot
}

func formatID(id int64) string {
	return fmt.Sprintf("%d", id)
}
