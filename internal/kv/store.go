// Package kv is the TTL key-value adapter shared by every conversation
// primitive. RedisStore is the shared store; MemoryStore serves as the
// per-process fallback and as the single-process backend when no Redis
// address is configured.
package kv

import (
	"context"
	"errors"
	"time"
)

// TTL sentinels, matching the raw values Redis reports.
const (
	KeyMissing time.Duration = -2
	NoExpiry   time.Duration = -1
)

var (
	// ErrUnavailable wraps every failure to reach the backing store.
	ErrUnavailable = errors.New("kv: store unavailable")
	// ErrWrongType is returned when a list operation hits a string key or vice versa.
	ErrWrongType = errors.New("kv: wrong value type for key")
)

// Store is a TTL key-value store with list support.
type Store interface {
	// Set writes a string value. ttl <= 0 stores without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Expire sets a TTL on an existing key. Missing keys are left alone.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lifetime, KeyMissing, or NoExpiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// RPush appends to a list and returns its new length.
	RPush(ctx context.Context, key, value string) (int64, error)
	Len(ctx context.Context, key string) (int64, error)
	// Drain atomically reads the whole list and deletes the key.
	Drain(ctx context.Context, key string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
