package txn

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPendingInvalidationSetDedupes(t *testing.T) {
	set := NewPendingInvalidationSet()

	set.Add("product:entity:1", "product:query:*")
	set.Add("product:entity:1")
	set.Add("category:entity:9", "product:query:*")

	want := []string{"product:entity:1", "product:query:*", "category:entity:9"}
	if diff := cmp.Diff(want, set.Targets()); diff != "" {
		t.Errorf("Targets() mismatch (-want +got):\n%s", diff)
	}
	if set.Len() != 3 {
		t.Errorf("Len() = %d, want 3", set.Len())
	}
}

func TestPendingInvalidationSetSkipsEmpty(t *testing.T) {
	set := NewPendingInvalidationSet()
	set.Add("", "k", "")
	if diff := cmp.Diff([]string{"k"}, set.Targets()); diff != "" {
		t.Errorf("Targets() mismatch (-want +got):\n%s", diff)
	}
}

func TestPendingInvalidationSetCopiesTargets(t *testing.T) {
	set := NewPendingInvalidationSet()
	set.Add("a", "b")

	targets := set.Targets()
	targets[0] = "mutated"

	if got := set.Targets()[0]; got != "a" {
		t.Errorf("internal slice mutated through returned copy: %q", got)
	}
}

func TestPendingInvalidationSetConcurrentAdd(t *testing.T) {
	set := NewPendingInvalidationSet()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				set.Add("product:entity:1", "product:query:*")
			}
		}()
	}
	wg.Wait()

	if set.Len() != 2 {
		t.Errorf("Len() = %d, want 2 after concurrent duplicate adds", set.Len())
	}
}
