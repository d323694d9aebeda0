// Package cache stores short-lived JSON values: cached sessions and wizard drafts.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when the key is absent or expired
var ErrMiss = errors.New("cache miss")

// Cache is implemented by Redis and by an in-memory map for tests
type Cache interface {
	Get(ctx context.Context, key string, dst interface{}) error
	Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	// Take reads the value and deletes it in one step
	Take(ctx context.Context, key string, dst interface{}) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
