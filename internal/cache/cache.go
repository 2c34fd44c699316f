// Package cache provides a small key/value cache used for immutable status
// views. Entries are JSON blobs; callers own the encoding.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the minimal cache contract. Failures on Set are advisory; the
// store of record is never the cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Noop satisfies Cache without caching anything. Used when Redis is not
// configured.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
