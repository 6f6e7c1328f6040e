// Package cache provides deterministic cache key derivation, the shared
// cache store port, and the read-through helpers used by the repository
// layer.
//
// # Keys
//
// Every key has the shape {namespace}:{kind}:{discriminator} with kind
// being either "entity" or "query". Entity keys carry the record identity
// verbatim (composite identities as "ownerId_relatedId") so point lookups
// remain human-debuggable. Query keys append the snake_cased action name
// and an xxhash digest of the canonicalized parameter map; equal filter
// sets built in any order always collide to the same key.
//
// # Read-through
//
//	link, err := cache.Remember(ctx, c, key, ttl, func(ctx context.Context) (*catalog.Link, error) {
//		return loadFromDatabase(ctx)
//	})
//
// On a hit the loader is never invoked. On a miss the loader runs, its
// result is msgpack-encoded and stored with the given TTL, and returned.
// Loader errors propagate uncached. Store faults on either side of a read
// are logged and absorbed: a broken cache degrades to loader-only
// execution, it never fails a read.
//
// RememberForever stores without expiry and is reserved for reference sets
// that change only through explicit invalidation.
//
// # Invalidation
//
// The package deliberately exposes no buffered invalidation of its own.
// Writers queue targets through the txn package, which applies them against
// Store only after the owning database transaction commits. See txn for the
// ordering rationale.
package cache
