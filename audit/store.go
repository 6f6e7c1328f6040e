package audit

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-store/catalog"
)

// Store is the append-only audit sink backed by the relational store.
// Records are immutable once written: the only sanctioned removal path is a
// time-bounded retention cleanup run outside this core.
type Store struct {
	db *bun.DB
}

// NewStore wraps the database handle.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Append persists one audit record.
func (s *Store) Append(ctx context.Context, rec *catalog.AuditRecord) error {
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return catalog.Infra(err, "append audit record")
	}
	return nil
}

// ListForEntity returns the audit trail for one entity, newest first.
func (s *Store) ListForEntity(ctx context.Context, entityType, entityID string) ([]catalog.AuditRecord, error) {
	var records []catalog.AuditRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("ar.entity_type = ?", entityType).
		Where("ar.entity_id = ?", entityID).
		Order("performed_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, catalog.Infra(err, "list audit records")
	}
	return records, nil
}

// Update always fails: audit records are write-once.
func (s *Store) Update(context.Context, *catalog.AuditRecord) error {
	return catalog.ErrAuditImmutable
}

// Delete always fails: audit records are write-once.
func (s *Store) Delete(context.Context, string) error {
	return catalog.ErrAuditImmutable
}

// Restore always fails: audit records are never soft-deleted.
func (s *Store) Restore(context.Context, string) error {
	return catalog.ErrAuditImmutable
}
