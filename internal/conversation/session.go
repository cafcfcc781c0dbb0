package conversation

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/goturn/internal/kv"
)

const DefaultSessionWindow = 40 * time.Minute

// SessionWindow is the sliding window that decides whether a turn continues
// the current order. Store failures read as "still active".
type SessionWindow struct {
	store kv.Store
	ttl   time.Duration
}

func NewSessionWindow(store kv.Store, ttl time.Duration) *SessionWindow {
	if ttl <= 0 {
		ttl = DefaultSessionWindow
	}
	return &SessionWindow{store: store, ttl: ttl}
}

// CheckAndRefresh reports whether the window was already open, then
// (re)opens it for another full window. The check precedes the refresh.
func (s *SessionWindow) CheckAndRefresh(ctx context.Context, id string) bool {
	key := SessionKey(id)
	existed, err := s.store.Exists(ctx, key)
	setErr := s.store.Set(ctx, key, "1", s.ttl)
	if err != nil || setErr != nil {
		return true
	}
	return existed
}

// Active is a read-only check that never refreshes the window.
func (s *SessionWindow) Active(ctx context.Context, id string) bool {
	ok, err := s.store.Exists(ctx, SessionKey(id))
	if err != nil {
		return true
	}
	return ok
}
