// Package cachemanager provides typed in-memory caches shared by the client:
// the server fingerprint table and decoded client certificates.
package cachemanager

import (
	"context"
	"time"
)

// NoExpiration keeps an entry until it is overwritten or deleted.
const NoExpiration time.Duration = -1

// CacheManager is a typed key/value cache.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Items(ctx context.Context) map[K]V
	Delete(ctx context.Context, keys ...K)
	Flush(ctx context.Context)
}
