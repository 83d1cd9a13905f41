// Package cache holds the byte caches the record store can read through:
// an in-process expiring LRU and a Redis-backed one.
package cache

import "context"

type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	// Purge drops every entry owned by this cache.
	Purge(ctx context.Context) error
	Close() error
}
