package repository

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCriteriaParams(t *testing.T) {
	crit := Criteria{
		Visibility: VisibleAll,
		Filters:    map[string]any{"category_id": int64(3), "active": true},
		OrderBy:    "name ASC",
		Limit:      50,
		Offset:     100,
	}

	want := map[string]any{
		"visibility":    "all",
		"f:category_id": int64(3),
		"f:active":      true,
		"order":         "name ASC",
		"limit":         50,
		"offset":        100,
	}
	if diff := cmp.Diff(want, crit.Params()); diff != "" {
		t.Errorf("Params() mismatch (-want +got):\n%s", diff)
	}
}

func TestCriteriaParamsOmitZeroValues(t *testing.T) {
	want := map[string]any{"visibility": "active"}
	if diff := cmp.Diff(want, Criteria{}.Params()); diff != "" {
		t.Errorf("Params() mismatch (-want +got):\n%s", diff)
	}
}

func TestVisibilityString(t *testing.T) {
	tests := []struct {
		visibility Visibility
		expected   string
	}{
		{VisibleActive, "active"},
		{VisibleAll, "all"},
		{VisibleDeleted, "deleted"},
	}
	for _, tt := range tests {
		if got := tt.visibility.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}

func TestCriteriaFilterColumnsSorted(t *testing.T) {
	crit := Criteria{Filters: map[string]any{"zeta": 1, "alpha": 2, "mid": 3}}
	want := []string{"alpha", "mid", "zeta"}
	if diff := cmp.Diff(want, crit.sortedFilterColumns()); diff != "" {
		t.Errorf("sortedFilterColumns() mismatch (-want +got):\n%s", diff)
	}
}
