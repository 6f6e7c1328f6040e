package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// TTLForever marks an entry that never expires on its own; it is removed
// only by explicit invalidation.
const TTLForever time.Duration = 0

// Store is the shared cache backend consumed by the read-through layer and
// the transaction coordinator's post-commit flush. Every operation is
// idempotent and safe to call concurrently from multiple processes; no code
// outside this module writes keys under a repository namespace.
type Store interface {
	// Get returns the raw entry bytes and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. ttl of TTLForever disables expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// DeleteMatching removes every key matching a glob-style pattern
	// (prefix patterns such as "category:query:*"). Matching nothing is a
	// no-op.
	DeleteMatching(ctx context.Context, pattern string) error
}

// Cache pairs a Store with a logger. Store faults on the read path degrade
// to loader-only execution: a broken cache must never break a read.
type Cache struct {
	store Store
	log   *slog.Logger
}

// New wraps store. A nil logger falls back to slog.Default().
func New(store Store, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{store: store, log: log}
}

// Store exposes the underlying backend for the invalidation flush.
func (c *Cache) Store() Store { return c.store }

// LoaderFn computes a value from the source of truth on cache miss.
type LoaderFn[T any] func(ctx context.Context) (T, error)

// Remember returns the cached value for key, or runs loader, stores the
// result with ttl and returns it. Loader errors propagate uncached; neither
// errors nor partial results are ever stored.
func Remember[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, loader LoaderFn[T]) (T, error) {
	var zero T

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.WarnContext(ctx, "cache read failed, falling through to loader",
			slog.String("key", key), slog.Any("error", err))
	} else if ok {
		var cached T
		if err := msgpack.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		// Undecodable entries are treated as misses and overwritten below.
		c.log.WarnContext(ctx, "cache entry undecodable, refetching",
			slog.String("key", key))
	}

	value, err := loader(ctx)
	if err != nil {
		return zero, err
	}

	encoded, err := msgpack.Marshal(value)
	if err != nil {
		c.log.WarnContext(ctx, "cache encode failed, returning uncached value",
			slog.String("key", key), slog.Any("error", err))
		return value, nil
	}
	if err := c.store.Set(ctx, key, encoded, ttl); err != nil {
		c.log.WarnContext(ctx, "cache write failed, returning uncached value",
			slog.String("key", key), slog.Any("error", err))
	}

	return value, nil
}

// RememberForever is Remember without TTL expiry, for near-static reference
// sets that are invalidated only explicitly.
func RememberForever[T any](ctx context.Context, c *Cache, key string, loader LoaderFn[T]) (T, error) {
	return Remember(ctx, c, key, TTLForever, loader)
}
