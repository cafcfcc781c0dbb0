package kv

import (
	"context"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goturn/internal/clock"
)

type memEntry struct {
	str     string
	list    []string
	isList  bool
	expires time.Time // zero: no expiry
}

// MemoryStore is an in-process Store with lazy expiry. It never fails.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]*memEntry
}

// NewMemoryStore creates an empty store; a nil clock uses real time.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryStore{clock: clk, entries: make(map[string]*memEntry)}
}

func (m *MemoryStore) lookupLocked(key string) *memEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !m.clock.Now().Before(e.expires) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &memEntry{str: value}
	if ttl > 0 {
		e.expires = m.clock.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookupLocked(key)
	if e == nil {
		return "", false, nil
	}
	if e.isList {
		return "", false, ErrWrongType
	}
	return e.str, true, nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(key) != nil, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookupLocked(key)
	if e == nil {
		return nil
	}
	if ttl <= 0 {
		delete(m.entries, key)
		return nil
	}
	e.expires = m.clock.Now().Add(ttl)
	return nil
}

func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookupLocked(key)
	if e == nil {
		return KeyMissing, nil
	}
	if e.expires.IsZero() {
		return NoExpiry, nil
	}
	return e.expires.Sub(m.clock.Now()), nil
}

func (m *MemoryStore) RPush(_ context.Context, key, value string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookupLocked(key)
	if e == nil {
		e = &memEntry{isList: true}
		m.entries[key] = e
	}
	if !e.isList {
		return 0, ErrWrongType
	}
	e.list = append(e.list, value)
	return int64(len(e.list)), nil
}

func (m *MemoryStore) Len(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookupLocked(key)
	if e == nil {
		return 0, nil
	}
	if !e.isList {
		return 0, ErrWrongType
	}
	return int64(len(e.list)), nil
}

func (m *MemoryStore) Drain(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookupLocked(key)
	if e == nil {
		return nil, nil
	}
	if !e.isList {
		return nil, ErrWrongType
	}
	delete(m.entries, key)
	return e.list, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
