// Package repository implements the entity repositories of the catalog
// core. Reads memoize through the shared cache; writes run inside the
// transaction coordinator, which applies the queued invalidations and the
// buffered audit records only after commit.
package repository

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-store/audit"
	"github.com/goliatone/go-catalog-store/cache"
	"github.com/goliatone/go-catalog-store/catalog"
	"github.com/goliatone/go-catalog-store/txn"
)

// Deps bundles the collaborators every repository is constructed with.
// Explicit injection only; no ambient lookup.
type Deps struct {
	Coordinator *txn.Coordinator
	Cache       *cache.Cache
	Keys        cache.KeyDeriver
	Recorder    *audit.Recorder
	TTL         cache.TTLPolicy
}

// base carries the per-repository namespace plus the shared collaborators.
type base struct {
	Deps
	ns string
}

func newBase(deps Deps, namespace string) base {
	return base{Deps: deps, ns: namespace}
}

func (b *base) entityKey(id any) string {
	return b.Keys.EntityKey(b.ns, id)
}

func (b *base) queryKey(action string, params map[string]any) string {
	return b.Keys.QueryKey(b.ns, action, params)
}

func (b *base) queryPattern() string {
	return b.Keys.QueryPattern(b.ns)
}

// freshDB returns the open operation's transaction when one exists, the
// plain handle otherwise. Guard reads go through here so they bypass the
// cache and see the operation's own writes.
func (b *base) freshDB(ctx context.Context) bun.IDB {
	if tx, ok := txn.TxFrom(ctx); ok {
		return tx
	}
	return b.Coordinator.DB()
}

// invalidateEntity queues the entity key plus every query key in the
// namespace: any listing may reference the mutated row.
func (b *base) invalidateEntity(ctx context.Context, id any) {
	b.Coordinator.Invalidate(ctx, b.entityKey(id), b.queryPattern())
}

// recordAudit buffers an audit record for the open operation, stamping the
// actor and request metadata carried on the context.
func (b *base) recordAudit(ctx context.Context, entityID, action string, oldValues, newValues map[string]any) {
	meta := audit.RequestMetaFrom(ctx)
	rec := b.Recorder.Record(ctx, audit.Change{
		ActorID:    audit.ActorFrom(ctx),
		EntityType: b.ns,
		EntityID:   entityID,
		Action:     action,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	})
	b.Coordinator.Record(ctx, rec)
}

// validate funnels entity validation failures into the error taxonomy.
func validate(v interface{ Validate() error }) error {
	if err := v.Validate(); err != nil {
		return catalog.Validationf("invalid input: %v", err)
	}
	return nil
}
