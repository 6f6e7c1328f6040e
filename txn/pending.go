package txn

import "sync"

// PendingInvalidationSet is the ordered, de-duplicated buffer of
// invalidation targets scoped to one logical operation. Targets are either
// exact keys or glob patterns; application order is preserved, and because
// applying a target is idempotent, reordering among targets cannot corrupt
// the final cache state.
type PendingInvalidationSet struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	targets []string
}

// NewPendingInvalidationSet returns an empty set.
func NewPendingInvalidationSet() *PendingInvalidationSet {
	return &PendingInvalidationSet{seen: make(map[string]struct{})}
}

// Add appends targets not already queued, keeping first-added order.
func (s *PendingInvalidationSet) Add(targets ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, target := range targets {
		if target == "" {
			continue
		}
		if _, dup := s.seen[target]; dup {
			continue
		}
		s.seen[target] = struct{}{}
		s.targets = append(s.targets, target)
	}
}

// Targets returns the queued targets in insertion order.
func (s *PendingInvalidationSet) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.targets...)
}

// Len reports the number of queued targets.
func (s *PendingInvalidationSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.targets)
}
