package kv

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goturn/internal/clock"
)

type backend struct {
	name    string
	store   Store
	advance func(time.Duration)
}

func backends(t *testing.T) []backend {
	t.Helper()
	mr := miniredis.RunT(t)
	rs := NewRedisStore(RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { rs.Close() })

	clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return []backend{
		{name: "redis", store: rs, advance: mr.FastForward},
		{name: "memory", store: NewMemoryStore(clk), advance: clk.Advance},
	}
}

func TestStoreStrings(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			_, ok, err := b.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, b.store.Set(ctx, "k", "1", time.Minute))
			v, ok, err := b.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "1", v)

			ttl, err := b.store.TTL(ctx, "k")
			require.NoError(t, err)
			assert.Greater(t, ttl, 50*time.Second)

			b.advance(61 * time.Second)
			exists, err := b.store.Exists(ctx, "k")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestStoreTTLSentinels(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			ttl, err := b.store.TTL(ctx, "missing")
			require.NoError(t, err)
			assert.Equal(t, KeyMissing, ttl)

			require.NoError(t, b.store.Set(ctx, "forever", "x", 0))
			ttl, err = b.store.TTL(ctx, "forever")
			require.NoError(t, err)
			assert.Equal(t, NoExpiry, ttl)

			require.NoError(t, b.store.Expire(ctx, "forever", 10*time.Second))
			ttl, err = b.store.TTL(ctx, "forever")
			require.NoError(t, err)
			assert.Greater(t, ttl, time.Duration(0))

			require.NoError(t, b.store.Delete(ctx, "forever"))
			ttl, err = b.store.TTL(ctx, "forever")
			require.NoError(t, err)
			assert.Equal(t, KeyMissing, ttl)
		})
	}
}

func TestStoreListDrain(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			for i, frag := range []string{"leite", "pão", "2kg de arroz"} {
				n, err := b.store.RPush(ctx, "msgbuf:1", frag)
				require.NoError(t, err)
				assert.Equal(t, int64(i+1), n)
			}
			n, err := b.store.Len(ctx, "msgbuf:1")
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)

			items, err := b.store.Drain(ctx, "msgbuf:1")
			require.NoError(t, err)
			assert.Equal(t, []string{"leite", "pão", "2kg de arroz"}, items)

			n, err = b.store.Len(ctx, "msgbuf:1")
			require.NoError(t, err)
			assert.Zero(t, n)

			items, err = b.store.Drain(ctx, "msgbuf:1")
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestStoreDrainConcurrentWithPush(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			const pushers, perPusher = 4, 50

			var want []string
			var wg sync.WaitGroup
			for p := 0; p < pushers; p++ {
				for i := 0; i < perPusher; i++ {
					want = append(want, fmt.Sprintf("p%d-%d", p, i))
				}
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for i := 0; i < perPusher; i++ {
						_, err := b.store.RPush(ctx, "msgbuf:2", fmt.Sprintf("p%d-%d", p, i))
						assert.NoError(t, err)
					}
				}(p)
			}
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()

			var got []string
			for draining := true; draining; {
				select {
				case <-done:
					draining = false
				default:
				}
				items, err := b.store.Drain(ctx, "msgbuf:2")
				require.NoError(t, err)
				got = append(got, items...)
			}

			assert.ElementsMatch(t, want, got, "every fragment drained exactly once")

			// Fragments from one pusher keep their order across drains.
			next := make(map[string]int)
			for _, item := range got {
				var p, i int
				_, err := fmt.Sscanf(item, "p%d-%d", &p, &i)
				require.NoError(t, err)
				key := fmt.Sprint(p)
				assert.Equal(t, next[key], i, item)
				next[key] = i + 1
			}
		})
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedisStore(RedisOptions{Addr: mr.Addr()})
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	assert.True(t, s.Healthy())

	mr.SetError("LOADING server is loading")
	_, err := s.RPush(ctx, "msgbuf:1", "x")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, _, err = s.Get(ctx, "cooldown:1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, s.Healthy())

	mr.SetError("")
	_, _, err = s.Get(ctx, "cooldown:1")
	require.NoError(t, err)
	assert.True(t, s.Healthy())
}

func TestRedisStoreNeverDialsOnConstruction(t *testing.T) {
	s := NewRedisStore(RedisOptions{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer s.Close()

	_, err := s.Len(context.Background(), "msgbuf:1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryStoreWrongType(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(nil)
	require.NoError(t, m.Set(ctx, "k", "v", 0))
	_, err := m.RPush(ctx, "k", "x")
	assert.ErrorIs(t, err, ErrWrongType)
}
