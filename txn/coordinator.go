// Package txn coordinates mutations as one atomic unit: database
// transaction, queued cache invalidation, and the buffered audit side
// effect.
//
// Invalidating before commit opens a race: a concurrent reader can
// repopulate the cache with pre-write state between the invalidation and
// commit visibility, poisoning the cache until the next write. The
// coordinator therefore queues every invalidation target while the
// transaction is open and applies the queue only after the database reports
// a durable commit. On rollback the queue and the audit buffer are
// discarded wholesale; no partial effect survives.
package txn

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-store/cache"
	"github.com/goliatone/go-catalog-store/catalog"
)

// AuditSink persists audit records. Append-only: no update or delete
// surface is exposed to this core.
type AuditSink interface {
	Append(ctx context.Context, rec *catalog.AuditRecord) error
}

type opState struct {
	tx      bun.IDB
	pending *PendingInvalidationSet

	mu     sync.Mutex
	audits []*catalog.AuditRecord
}

func (s *opState) buffer(rec *catalog.AuditRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, rec)
}

type opCtxKey struct{}

func stateFrom(ctx context.Context) *opState {
	state, _ := ctx.Value(opCtxKey{}).(*opState)
	return state
}

// Coordinator wraps mutations in bun transactions and owns the post-commit
// flush of cache invalidations and buffered audit records.
type Coordinator struct {
	db    *bun.DB
	store cache.Store
	sink  AuditSink
	log   *slog.Logger
}

// New builds a coordinator. A nil logger falls back to slog.Default().
func New(db *bun.DB, store cache.Store, sink AuditSink, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{db: db, store: store, sink: sink, log: log}
}

// DB exposes the underlying handle for uncached reads outside a
// transaction.
func (c *Coordinator) DB() *bun.DB { return c.db }

// Run executes fn inside a database transaction. A Run call made while an
// operation is already open joins it: nested calls share the outer pending
// invalidation set and audit buffer, and only the outermost boundary
// commits and flushes.
//
// fn errors (and context cancellation surfaced through the driver) roll the
// transaction back and discard all queued side effects. After a successful
// commit the queued targets are applied in order and the buffered audit
// records are appended. Per-target store faults are logged and skipped: an
// un-invalidated key still expires via TTL, and a committed write must
// never be reported failed for a cache fault.
func (c *Coordinator) Run(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error {
	if state := stateFrom(ctx); state != nil {
		return fn(ctx, state.tx)
	}

	state := &opState{pending: NewPendingInvalidationSet()}
	err := c.db.RunInTx(ctx, nil, func(txCtx context.Context, tx bun.Tx) error {
		state.tx = tx
		return fn(context.WithValue(txCtx, opCtxKey{}, state), tx)
	})
	if err != nil {
		return err
	}

	c.applyTargets(ctx, state.pending.Targets())
	c.appendAudits(ctx, state.audits)
	return nil
}

// Invalidate queues targets on the open operation. Called outside an
// operation it applies them immediately; both paths are idempotent.
func (c *Coordinator) Invalidate(ctx context.Context, targets ...string) {
	if state := stateFrom(ctx); state != nil {
		state.pending.Add(targets...)
		return
	}
	c.applyTargets(ctx, targets)
}

// Record buffers an audit record on the open operation, or appends it
// directly when no operation is open.
func (c *Coordinator) Record(ctx context.Context, rec *catalog.AuditRecord) {
	if rec == nil {
		return
	}
	if state := stateFrom(ctx); state != nil {
		state.buffer(rec)
		return
	}
	c.appendAudits(ctx, []*catalog.AuditRecord{rec})
}

// InOperation reports whether ctx carries an open operation.
func InOperation(ctx context.Context) bool {
	return stateFrom(ctx) != nil
}

// TxFrom returns the open operation's transaction, if any. Guards use it so
// precondition reads observe the operation's own uncommitted writes.
func TxFrom(ctx context.Context) (bun.IDB, bool) {
	if state := stateFrom(ctx); state != nil {
		return state.tx, true
	}
	return nil, false
}

func (c *Coordinator) applyTargets(ctx context.Context, targets []string) {
	for _, target := range targets {
		var err error
		if strings.ContainsRune(target, '*') {
			err = c.store.DeleteMatching(ctx, target)
		} else {
			err = c.store.Delete(ctx, target)
		}
		if err != nil {
			c.log.ErrorContext(ctx, "cache invalidation failed, key left to expire via TTL",
				slog.String("target", target), slog.Any("error", err))
		}
	}
}

func (c *Coordinator) appendAudits(ctx context.Context, records []*catalog.AuditRecord) {
	for _, rec := range records {
		if err := c.sink.Append(ctx, rec); err != nil {
			c.log.ErrorContext(ctx, "audit append failed after commit",
				slog.String("entity_type", rec.EntityType),
				slog.String("entity_id", rec.EntityID),
				slog.String("action", rec.Action),
				slog.Any("error", err))
		}
	}
}
