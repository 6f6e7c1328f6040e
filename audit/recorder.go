// Package audit captures before/after snapshots of mutations and persists
// them as write-once records through the transaction coordinator.
package audit

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/newmo-oss/ctxtime"

	"github.com/goliatone/go-catalog-store/catalog"
)

// Change describes one mutation to be audited.
type Change struct {
	ActorID    *string
	EntityType string
	EntityID   string
	Action     string
	OldValues  map[string]any
	NewValues  map[string]any
	IPAddress  *string
	UserAgent  *string
}

// Recorder builds audit records. Stateless; the clock comes from the
// context so tests can pin it.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record materializes a Change into an AuditRecord, computing the
// human-readable summary when both snapshots are present.
func (r *Recorder) Record(ctx context.Context, change Change) *catalog.AuditRecord {
	return &catalog.AuditRecord{
		ID:             uuid.NewString(),
		ActorID:        change.ActorID,
		EntityType:     change.EntityType,
		EntityID:       change.EntityID,
		Action:         change.Action,
		OldValues:      change.OldValues,
		NewValues:      change.NewValues,
		ChangesSummary: Summarize(change.OldValues, change.NewValues),
		IPAddress:      change.IPAddress,
		UserAgent:      change.UserAgent,
		PerformedAt:    ctxtime.Now(ctx),
	}
}

// Summarize diffs the snapshots key-by-key. Keys present in both maps with
// differing values, plus keys added or removed, are reported in sorted
// order. Returns "" when either snapshot is absent.
func Summarize(oldValues, newValues map[string]any) string {
	if oldValues == nil || newValues == nil {
		return ""
	}

	keys := make(map[string]struct{}, len(oldValues)+len(newValues))
	for k := range oldValues {
		keys[k] = struct{}{}
	}
	for k := range newValues {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var parts []string
	for _, k := range sorted {
		oldVal, hadOld := oldValues[k]
		newVal, hasNew := newValues[k]
		switch {
		case hadOld && hasNew:
			if !reflect.DeepEqual(oldVal, newVal) {
				parts = append(parts, fmt.Sprintf("%s: %v -> %v", k, oldVal, newVal))
			}
		case hadOld:
			parts = append(parts, fmt.Sprintf("%s: %v removed", k, oldVal))
		default:
			parts = append(parts, fmt.Sprintf("%s: %v added", k, newVal))
		}
	}
	return strings.Join(parts, "; ")
}
