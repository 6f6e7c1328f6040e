package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-store/catalog"
	"github.com/goliatone/go-catalog-store/pkg/testsupport"
)

type recordingStore struct {
	deletes        []string
	patternDeletes []string
	failFor        map[string]error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{failFor: make(map[string]error)}
}

func (s *recordingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (s *recordingStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (s *recordingStore) Delete(_ context.Context, key string) error {
	if err := s.failFor[key]; err != nil {
		return err
	}
	s.deletes = append(s.deletes, key)
	return nil
}

func (s *recordingStore) DeleteMatching(_ context.Context, pattern string) error {
	if err := s.failFor[pattern]; err != nil {
		return err
	}
	s.patternDeletes = append(s.patternDeletes, pattern)
	return nil
}

type recordingSink struct {
	records []*catalog.AuditRecord
	err     error
}

func (s *recordingSink) Append(_ context.Context, rec *catalog.AuditRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func insertMarketplace(ctx context.Context, tx bun.IDB, name string) error {
	mp := &catalog.Marketplace{
		Name:      name,
		Domain:    name + ".example.com",
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_, err := tx.NewInsert().Model(mp).Exec(ctx)
	return err
}

func countMarketplaces(t *testing.T, db *bun.DB) int {
	t.Helper()
	count, err := db.NewSelect().Model((*catalog.Marketplace)(nil)).Count(context.Background())
	if err != nil {
		t.Fatalf("count marketplaces: %v", err)
	}
	return count
}

func TestRunCommitFlushesInvalidationsAndAudits(t *testing.T) {
	ctx := context.Background()
	db := testsupport.NewDB(t)
	store := newRecordingStore()
	sink := &recordingSink{}
	c := New(db, store, sink, nil)

	err := c.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		if err := insertMarketplace(ctx, tx, "acme"); err != nil {
			return err
		}
		c.Invalidate(ctx, "marketplace:entity:1", "marketplace:query:*")
		c.Record(ctx, &catalog.AuditRecord{
			ID: "rec-1", EntityType: "marketplace", EntityID: "1", Action: "create",
		})

		// Nothing flushes while the transaction is open.
		if len(store.deletes)+len(store.patternDeletes) != 0 {
			t.Error("invalidation applied before commit")
		}
		if len(sink.records) != 0 {
			t.Error("audit appended before commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if countMarketplaces(t, db) != 1 {
		t.Error("committed row missing")
	}
	if diff := cmp.Diff([]string{"marketplace:entity:1"}, store.deletes); diff != "" {
		t.Errorf("deletes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"marketplace:query:*"}, store.patternDeletes); diff != "" {
		t.Errorf("pattern deletes mismatch (-want +got):\n%s", diff)
	}
	if len(sink.records) != 1 || sink.records[0].ID != "rec-1" {
		t.Errorf("audit records = %+v, want rec-1", sink.records)
	}
}

func TestRunRollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	db := testsupport.NewDB(t)
	store := newRecordingStore()
	sink := &recordingSink{}
	c := New(db, store, sink, nil)

	wantErr := errors.New("business rule violated")
	err := c.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		if err := insertMarketplace(ctx, tx, "doomed"); err != nil {
			return err
		}
		c.Invalidate(ctx, "marketplace:entity:1")
		c.Record(ctx, &catalog.AuditRecord{ID: "rec-1"})
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}

	if countMarketplaces(t, db) != 0 {
		t.Error("rolled-back row persisted")
	}
	if len(store.deletes)+len(store.patternDeletes) != 0 {
		t.Error("invalidation applied after rollback")
	}
	if len(sink.records) != 0 {
		t.Error("audit appended after rollback")
	}
}

func TestRunNestedJoinsOuterOperation(t *testing.T) {
	ctx := context.Background()
	db := testsupport.NewDB(t)
	store := newRecordingStore()
	c := New(db, store, &recordingSink{}, nil)

	err := c.Run(ctx, func(ctx context.Context, outerTx bun.IDB) error {
		c.Invalidate(ctx, "outer:entity:1")

		return c.Run(ctx, func(ctx context.Context, innerTx bun.IDB) error {
			if !InOperation(ctx) {
				t.Error("inner call lost the operation state")
			}
			c.Invalidate(ctx, "inner:entity:2")

			if len(store.deletes) != 0 {
				t.Error("nested boundary flushed before outer commit")
			}
			return insertMarketplace(ctx, innerTx, "nested")
		})
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"outer:entity:1", "inner:entity:2"}
	if diff := cmp.Diff(want, store.deletes); diff != "" {
		t.Errorf("deletes mismatch (-want +got):\n%s", diff)
	}
}

func TestRunNestedErrorRollsBackOuter(t *testing.T) {
	ctx := context.Background()
	db := testsupport.NewDB(t)
	store := newRecordingStore()
	c := New(db, store, &recordingSink{}, nil)

	wantErr := errors.New("inner failure")
	err := c.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		if err := insertMarketplace(ctx, tx, "outer"); err != nil {
			return err
		}
		return c.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
			return wantErr
		})
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}
	if countMarketplaces(t, db) != 0 {
		t.Error("outer write survived inner failure")
	}
	if len(store.deletes) != 0 {
		t.Error("invalidation applied after rollback")
	}
}

func TestRunStoreFaultDoesNotFailCommit(t *testing.T) {
	ctx := context.Background()
	db := testsupport.NewDB(t)
	store := newRecordingStore()
	store.failFor["bad:entity:1"] = errors.New("store down")
	c := New(db, store, &recordingSink{}, nil)

	err := c.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		c.Invalidate(ctx, "bad:entity:1", "good:entity:2")
		return insertMarketplace(ctx, tx, "survivor")
	})
	if err != nil {
		t.Fatalf("Run() error = %v, committed write must not fail on cache fault", err)
	}

	// The failing target is skipped, the rest still apply.
	if diff := cmp.Diff([]string{"good:entity:2"}, store.deletes); diff != "" {
		t.Errorf("deletes mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAuditFaultDoesNotFailCommit(t *testing.T) {
	ctx := context.Background()
	db := testsupport.NewDB(t)
	sink := &recordingSink{err: errors.New("audit store down")}
	c := New(db, newRecordingStore(), sink, nil)

	err := c.Run(ctx, func(ctx context.Context, tx bun.IDB) error {
		c.Record(ctx, &catalog.AuditRecord{ID: "rec-1"})
		return insertMarketplace(ctx, tx, "survivor")
	})
	if err != nil {
		t.Fatalf("Run() error = %v, committed write must not fail on audit fault", err)
	}
}

func TestInvalidateOutsideOperationAppliesImmediately(t *testing.T) {
	ctx := context.Background()
	db := testsupport.NewDB(t)
	store := newRecordingStore()
	c := New(db, store, &recordingSink{}, nil)

	c.Invalidate(ctx, "product:entity:1", "product:query:*")

	if diff := cmp.Diff([]string{"product:entity:1"}, store.deletes); diff != "" {
		t.Errorf("deletes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"product:query:*"}, store.patternDeletes); diff != "" {
		t.Errorf("pattern deletes mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordOutsideOperationAppendsImmediately(t *testing.T) {
	ctx := context.Background()
	db := testsupport.NewDB(t)
	sink := &recordingSink{}
	c := New(db, newRecordingStore(), sink, nil)

	c.Record(ctx, &catalog.AuditRecord{ID: "rec-1"})
	if len(sink.records) != 1 {
		t.Errorf("records = %d, want 1", len(sink.records))
	}

	c.Record(ctx, nil)
	if len(sink.records) != 1 {
		t.Error("nil record must be ignored")
	}
}
