// Package cache provides the two-tier image cache.
//
// # Stores
//
// A [Cache] is a persistent key-value store of [Entry] records. Stores are
// best-effort: losing one is always safe. Implementations:
//
//   - [FileCache]: JSON files under a directory, for CLI use
//   - [MemoryCache]: process-local map, for tests and servers without storage
//   - [RedisCache]: Redis hashes, shared between processes
//   - [MongoCache]: MongoDB documents, shared between processes
//   - [NullCache]: stores nothing (caching disabled)
//
// Every store supports [Cache.Sweep], which removes entries under a key
// prefix stored before a cutoff. Expiry is not applied on write; the
// [Layer] treats stale entries as misses and sweeps them at startup.
//
// # Keys
//
// [Keyer] builds fingerprints from a source identity, an optional salt and a
// whitelist of option fields. Keys are "img:" plus a SHA-256 hex digest.
//
// # Layer
//
// [Layer] combines in-flight request coalescing, an optional in-process
// memo of settled results, and a persistent store:
//
//	layer := cache.NewLayer(store, cache.LayerOptions{MaxAge: 7 * 24 * time.Hour})
//	data, outcome, err := layer.Do(ctx, key, func(ctx context.Context) ([]byte, bool, error) {
//	    return resolve(ctx)
//	})
package cache

import (
	"context"
	"time"
)

// Entry is a stored value with the time it was written.
type Entry struct {
	Data     []byte    `json:"data" bson:"data"`
	StoredAt time.Time `json:"stored_at" bson:"stored_at"`
}

// Cache is a persistent key-value store.
type Cache interface {
	// Get returns the entry for key. A missing key is (Entry{}, false, nil).
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set stores an entry, replacing any previous value.
	Set(ctx context.Context, key string, e Entry) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Sweep removes entries whose key starts with prefix and that were
	// stored before cutoff. It returns the number of entries removed.
	Sweep(ctx context.Context, prefix string, cutoff time.Time) (int, error)

	// Close releases resources held by the store.
	Close() error
}
