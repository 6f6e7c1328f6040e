package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/newmo-oss/ctxtime"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-store/cache"
	"github.com/goliatone/go-catalog-store/catalog"
)

const adminNS = "admin"

// AdminRepository manages operator accounts. Role transitions and
// deactivations that would leave the system without an active super-admin
// are refused; the guard always counts fresh state inside the transaction.
type AdminRepository struct {
	base
}

// NewAdminRepository builds the repository.
func NewAdminRepository(deps Deps) *AdminRepository {
	return &AdminRepository{base: newBase(deps, adminNS)}
}

// FindByID returns one admin through the entity cache.
func (r *AdminRepository) FindByID(ctx context.Context, id string) (*catalog.Admin, error) {
	key := r.entityKey(id)
	return cache.Remember(ctx, r.Cache, key, r.TTL.Entity, func(ctx context.Context) (*catalog.Admin, error) {
		return r.fetch(ctx, r.Coordinator.DB(), id)
	})
}

// FindByEmail returns one admin by unique email through the query cache.
func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (*catalog.Admin, error) {
	key := r.queryKey("FindByEmail", map[string]any{"email": email})
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) (*catalog.Admin, error) {
		admin := new(catalog.Admin)
		err := r.Coordinator.DB().NewSelect().Model(admin).Where("a.email = ?", email).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, catalog.NotFound("admin", email)
			}
			return nil, catalog.Infra(err, "load admin by email")
		}
		return admin, nil
	})
}

// FindAll returns admins matching the criteria through the query cache.
func (r *AdminRepository) FindAll(ctx context.Context, crit Criteria) ([]catalog.Admin, error) {
	key := r.queryKey("FindAll", crit.Params())
	return cache.Remember(ctx, r.Cache, key, r.TTL.Query, func(ctx context.Context) ([]catalog.Admin, error) {
		var admins []catalog.Admin
		q := crit.Apply(r.Coordinator.DB().NewSelect().Model(&admins))
		if err := q.Scan(ctx); err != nil {
			return nil, catalog.Infra(err, "list admins")
		}
		return admins, nil
	})
}

// CountSuperAdmins counts active super-admins. Always fresh: the count
// backs the last-super-admin guard and a stale value could let the system
// lock every operator out.
func (r *AdminRepository) CountSuperAdmins(ctx context.Context) (int, error) {
	count, err := r.freshDB(ctx).NewSelect().
		Model((*catalog.Admin)(nil)).
		Where("a.role = ?", catalog.RoleSuperAdmin).
		Where("a.active").
		Count(ctx)
	if err != nil {
		return 0, catalog.Infra(err, "count super admins")
	}
	return count, nil
}

// Create validates and persists a new admin, assigning a fresh id when the
// caller left it empty.
func (r *AdminRepository) Create(ctx context.Context, admin *catalog.Admin) (*catalog.Admin, error) {
	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	if admin.Role == "" {
		admin.Role = catalog.RoleAdmin
	}
	if err := validate(admin); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		now := ctxtime.Now(ctx)
		admin.CreatedAt = now
		admin.UpdatedAt = now
		if _, err := tx.NewInsert().Model(admin).Exec(ctx); err != nil {
			return catalog.Infra(err, "insert admin")
		}

		r.invalidateEntity(ctx, admin.ID)
		r.recordAudit(ctx, admin.ID, catalog.ActionCreate, nil, adminSnapshot(admin))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// Update persists name/email changes. Role transitions go through
// PromoteToSuperAdmin and DemoteToAdmin so the guard cannot be bypassed.
func (r *AdminRepository) Update(ctx context.Context, admin *catalog.Admin) (*catalog.Admin, error) {
	if err := validate(admin); err != nil {
		return nil, err
	}

	err := r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, admin.ID)
		if err != nil {
			return err
		}
		if admin.Role != current.Role {
			return catalog.Validation("role changes must go through promote/demote")
		}

		admin.Active = current.Active
		admin.CreatedAt = current.CreatedAt
		admin.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(admin).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update admin")
		}

		r.invalidateEntity(ctx, admin.ID)
		r.recordAudit(ctx, admin.ID, catalog.ActionUpdate, adminSnapshot(current), adminSnapshot(admin))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// PromoteToSuperAdmin raises an admin to the super-admin role.
func (r *AdminRepository) PromoteToSuperAdmin(ctx context.Context, id string) error {
	return r.setRole(ctx, id, catalog.RoleSuperAdmin)
}

// DemoteToAdmin lowers a super-admin to the admin role. Refused when it
// would leave zero active super-admins.
func (r *AdminRepository) DemoteToAdmin(ctx context.Context, id string) error {
	return r.setRole(ctx, id, catalog.RoleAdmin)
}

func (r *AdminRepository) setRole(ctx context.Context, id, role string) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Role == role {
			return nil
		}

		if current.Role == catalog.RoleSuperAdmin && current.Active {
			if err := r.guardLastSuperAdmin(ctx); err != nil {
				return err
			}
		}

		updated := *current
		updated.Role = role
		updated.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(&updated).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update admin role")
		}

		r.invalidateEntity(ctx, id)
		r.recordAudit(ctx, id, catalog.ActionUpdate, adminSnapshot(current), adminSnapshot(&updated))
		return nil
	})
}

// Activate marks an admin active.
func (r *AdminRepository) Activate(ctx context.Context, id string) error {
	return r.setActive(ctx, id, true)
}

// Deactivate marks an admin inactive, with the same last-super-admin guard
// as demotion.
func (r *AdminRepository) Deactivate(ctx context.Context, id string) error {
	return r.setActive(ctx, id, false)
}

func (r *AdminRepository) setActive(ctx context.Context, id string, active bool) error {
	return r.Coordinator.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		current, err := r.fetch(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Active == active {
			return nil
		}

		if !active && current.Role == catalog.RoleSuperAdmin {
			if err := r.guardLastSuperAdmin(ctx); err != nil {
				return err
			}
		}

		updated := *current
		updated.Active = active
		updated.UpdatedAt = ctxtime.Now(ctx)
		if _, err := tx.NewUpdate().Model(&updated).WherePK().Exec(ctx); err != nil {
			return catalog.Infra(err, "update admin active state")
		}

		action := catalog.ActionDeactivate
		if active {
			action = catalog.ActionActivate
		}
		r.invalidateEntity(ctx, id)
		r.recordAudit(ctx, id, action, adminSnapshot(current), adminSnapshot(&updated))
		return nil
	})
}

func (r *AdminRepository) guardLastSuperAdmin(ctx context.Context) error {
	count, err := r.CountSuperAdmins(ctx)
	if err != nil {
		return err
	}
	if count <= 1 {
		return catalog.Validation("cannot remove the last active super admin")
	}
	return nil
}

func (r *AdminRepository) fetch(ctx context.Context, db bun.IDB, id string) (*catalog.Admin, error) {
	admin := new(catalog.Admin)
	if err := db.NewSelect().Model(admin).Where("a.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.NotFound("admin", id)
		}
		return nil, catalog.Infra(err, "load admin")
	}
	return admin, nil
}

func adminSnapshot(a *catalog.Admin) map[string]any {
	return map[string]any{
		"email":  a.Email,
		"name":   a.Name,
		"role":   a.Role,
		"active": a.Active,
	}
}
