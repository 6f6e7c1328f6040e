// Package cacheinfra implements the cache.Store port: an in-process store
// backed by xsync for tests and single-instance deployments, and a Redis
// store for multi-process deployments sharing one cache.
package cacheinfra

import (
	"context"
	"path"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultEvictionInterval is how often the memory store sweeps expired
// entries when no interval is configured.
const DefaultEvictionInterval = time.Minute

type memoryEntry struct {
	value     []byte
	storedAt  time.Time
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process cache.Store. Entries carry their own TTL and are
// dropped lazily on read plus periodically by a background sweep.
type Memory struct {
	entries *xsync.MapOf[string, memoryEntry]
	done    chan struct{}
}

// NewMemory creates a memory store sweeping expired entries every interval.
// A non-positive interval falls back to DefaultEvictionInterval. Call Close
// to stop the sweeper.
func NewMemory(interval time.Duration) *Memory {
	if interval <= 0 {
		interval = DefaultEvictionInterval
	}

	m := &Memory{
		entries: xsync.NewMapOf[string, memoryEntry](),
		done:    make(chan struct{}),
	}

	go m.sweep(interval)
	return m
}

// Get implements cache.Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := m.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		m.entries.Delete(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements cache.Store. A zero ttl stores the entry without expiry.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	entry := memoryEntry{value: value, storedAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	m.entries.Store(key, entry)
	return nil
}

// Delete implements cache.Store. Absent keys are a no-op.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

// DeleteMatching implements cache.Store using glob semantics. Cache keys
// never contain path separators, so path.Match behaves as a plain glob.
func (m *Memory) DeleteMatching(_ context.Context, pattern string) error {
	m.entries.Range(func(key string, _ memoryEntry) bool {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			m.entries.Delete(key)
		}
		return true
	})
	return nil
}

// Len reports the number of live entries, counting entries that expired but
// have not been swept yet.
func (m *Memory) Len() int {
	return m.entries.Size()
}

// Close stops the background sweeper. The store remains usable.
func (m *Memory) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Memory) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.entries.Range(func(key string, entry memoryEntry) bool {
				if entry.expired(now) {
					m.entries.Delete(key)
				}
				return true
			})
		}
	}
}
