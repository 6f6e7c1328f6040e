package repository

import (
	"sort"

	"github.com/uptrace/bun"
)

// Visibility selects which lifecycle states a query sees. Soft deletion is
// modeled once here instead of being re-implemented per repository: bun's
// soft-delete column drives the filter, and the same Criteria value feeds
// both the SQL builder and the cache key derivation.
type Visibility int

const (
	// VisibleActive returns only rows that are not soft-deleted.
	VisibleActive Visibility = iota

	// VisibleAll returns live and soft-deleted rows.
	VisibleAll

	// VisibleDeleted returns only soft-deleted rows.
	VisibleDeleted
)

func (v Visibility) String() string {
	switch v {
	case VisibleAll:
		return "all"
	case VisibleDeleted:
		return "deleted"
	default:
		return "active"
	}
}

// Criteria is an immutable query specification. It is applied to a fresh
// builder by Apply and rendered into canonical cache-key parameters by
// Params, so semantically identical filter sets share one cached result.
type Criteria struct {
	Visibility Visibility

	// Filters holds column = value equality predicates.
	Filters map[string]any

	// OrderBy is an optional ORDER BY expression.
	OrderBy string

	Limit  int
	Offset int
}

// Apply renders the specification onto a select query and returns the new
// builder state. It never mutates the criteria value.
func (c Criteria) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	switch c.Visibility {
	case VisibleAll:
		q = q.WhereAllWithDeleted()
	case VisibleDeleted:
		q = q.WhereDeleted()
	}

	for _, column := range c.sortedFilterColumns() {
		q = q.Where("? = ?", bun.Ident(column), c.Filters[column])
	}

	if c.OrderBy != "" {
		q = q.Order(c.OrderBy)
	}
	if c.Limit > 0 {
		q = q.Limit(c.Limit)
	}
	if c.Offset > 0 {
		q = q.Offset(c.Offset)
	}
	return q
}

// Params returns the canonical parameter map used for query-key derivation.
func (c Criteria) Params() map[string]any {
	params := map[string]any{
		"visibility": c.Visibility.String(),
	}
	for column, value := range c.Filters {
		params["f:"+column] = value
	}
	if c.OrderBy != "" {
		params["order"] = c.OrderBy
	}
	if c.Limit > 0 {
		params["limit"] = c.Limit
	}
	if c.Offset > 0 {
		params["offset"] = c.Offset
	}
	return params
}

func (c Criteria) sortedFilterColumns() []string {
	columns := make([]string, 0, len(c.Filters))
	for column := range c.Filters {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}
