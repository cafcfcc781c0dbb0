package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the shared store connection.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// RedisStore implements Store on top of go-redis. Construction never dials,
// so an unreachable server only surfaces as ErrUnavailable on use.
type RedisStore struct {
	client  *redis.Client
	addr    string
	healthy atomic.Bool
}

// NewRedisStore creates a store for opts.Addr.
func NewRedisStore(opts RedisOptions) *RedisStore {
	dial := opts.DialTimeout
	if dial <= 0 {
		dial = 2 * time.Second
	}
	op := opts.OpTimeout
	if op <= 0 {
		op = time.Second
	}
	s := &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  dial,
			ReadTimeout:  op,
			WriteTimeout: op,
			MaxRetries:   1,
		}),
		addr: opts.Addr,
	}
	s.healthy.Store(true)
	return s
}

// observe tracks store health and logs only on transitions.
func (s *RedisStore) observe(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		if s.healthy.CompareAndSwap(false, true) {
			slog.Info("kv: store recovered", "addr", s.addr)
		}
		return nil
	}
	if s.healthy.CompareAndSwap(true, false) {
		slog.Warn("kv: store unavailable", "addr", s.addr, "error", err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Healthy reports whether the last operation reached the server.
func (s *RedisStore) Healthy() bool { return s.healthy.Load() }

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.observe(s.client.Set(ctx, key, value, ttl).Err())
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, s.observe(nil)
	}
	if err != nil {
		return "", false, s.observe(err)
	}
	return v, true, s.observe(nil)
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, s.observe(err)
	}
	return n > 0, s.observe(nil)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.observe(s.client.Del(ctx, key).Err())
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.observe(s.client.Expire(ctx, key, ttl).Err())
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return KeyMissing, s.observe(err)
	}
	return d, s.observe(nil)
}

func (s *RedisStore) RPush(ctx context.Context, key, value string) (int64, error) {
	n, err := s.client.RPush(ctx, key, value).Result()
	if err != nil {
		return 0, s.observe(err)
	}
	return n, s.observe(nil)
}

func (s *RedisStore) Len(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, s.observe(err)
	}
	return n, s.observe(nil)
}

// Drain runs LRANGE and DEL inside MULTI/EXEC so concurrent pushes land in
// a fresh list rather than being lost.
func (s *RedisStore) Drain(ctx context.Context, key string) ([]string, error) {
	var items *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		items = p.LRange(ctx, key, 0, -1)
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, s.observe(err)
	}
	return items.Val(), s.observe(nil)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.observe(s.client.Ping(ctx).Err())
}

func (s *RedisStore) Close() error { return s.client.Close() }
