package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goturn/internal/kv"
)

const (
	DefaultBufferTTL            = 300 * time.Second
	DefaultMaxFallbackFragments = 200
)

// Buffer is the per-conversation fragment queue. Fragments go to the shared
// store; when it is unreachable they go to a process-local fallback so no
// fragment is lost while the process lives.
type Buffer struct {
	primary     kv.Store
	fallback    *kv.MemoryStore
	ttl         time.Duration
	maxFallback int
}

// NewBuffer creates a buffer. A nil fallback gets a fresh MemoryStore.
func NewBuffer(primary kv.Store, fallback *kv.MemoryStore, ttl time.Duration, maxFallback int) *Buffer {
	if fallback == nil {
		fallback = kv.NewMemoryStore(nil)
	}
	if ttl <= 0 {
		ttl = DefaultBufferTTL
	}
	if maxFallback <= 0 {
		maxFallback = DefaultMaxFallbackFragments
	}
	return &Buffer{primary: primary, fallback: fallback, ttl: ttl, maxFallback: maxFallback}
}

// Push appends fragment. It returns false only when the shared store is
// down and the local fallback for id is full; the caller should then
// process the fragment immediately instead of buffering it.
func (b *Buffer) Push(ctx context.Context, id, fragment string) bool {
	key := BufferKey(id)
	if _, err := b.primary.RPush(ctx, key, fragment); err == nil {
		b.ensureTTL(ctx, b.primary, key)
		return true
	}

	n, _ := b.fallback.Len(ctx, key)
	if int(n) >= b.maxFallback {
		slog.Warn("buffer: local fallback full", "conversation", Normalize(id), "fragments", n)
		return false
	}
	if _, err := b.fallback.RPush(ctx, key, fragment); err != nil {
		slog.Warn("buffer: local fallback push failed", "conversation", Normalize(id), "error", err)
		return false
	}
	b.ensureTTL(ctx, b.fallback, key)
	return true
}

// ensureTTL applies the default lifetime only when the key has none, so
// later pushes do not extend it.
func (b *Buffer) ensureTTL(ctx context.Context, s kv.Store, key string) {
	ttl, err := s.TTL(ctx, key)
	if err != nil || ttl >= 0 {
		return
	}
	_ = s.Expire(ctx, key, b.ttl)
}

// Len is the number of buffered fragments across both stores.
func (b *Buffer) Len(ctx context.Context, id string) int {
	key := BufferKey(id)
	n, err := b.primary.Len(ctx, key)
	if err != nil {
		n = 0
	}
	local, _ := b.fallback.Len(ctx, key)
	return int(n + local)
}

// Drain atomically empties the shared list, then the local fallback, and
// returns the fragments in push order within each store.
func (b *Buffer) Drain(ctx context.Context, id string) []string {
	key := BufferKey(id)
	out, err := b.primary.Drain(ctx, key)
	if err != nil {
		out = nil
	}
	local, _ := b.fallback.Drain(ctx, key)
	return append(out, local...)
}
