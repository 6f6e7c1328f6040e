package testsupport

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-catalog-store/catalog"
)

// NewDB opens a private in-memory sqlite database with the full catalog
// schema. The handle is closed when the test finishes.
func NewDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:?_fk=1")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Each sqlite connection gets its own in-memory database, so pin the
	// pool to a single long-lived connection.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	models := []any{
		(*catalog.Category)(nil),
		(*catalog.Product)(nil),
		(*catalog.Link)(nil),
		(*catalog.Marketplace)(nil),
		(*catalog.Badge)(nil),
		(*catalog.ProductBadge)(nil),
		(*catalog.Admin)(nil),
		(*catalog.AuditRecord)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			t.Fatalf("create table for %T: %v", model, err)
		}
	}
	return db
}
