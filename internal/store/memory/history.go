// Package memory provides an in-process HistoryStore for single-process
// deployments without Postgres.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goturn/internal/store"
)

const defaultLimit = 50

// HistoryStore keeps the most recent messages of each conversation in memory.
type HistoryStore struct {
	mu    sync.RWMutex
	limit int
	convs map[string][]store.HistoryMessage
}

func NewHistoryStore(limit int) *HistoryStore {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &HistoryStore{limit: limit, convs: make(map[string][]store.HistoryMessage)}
}

func (s *HistoryStore) Append(_ context.Context, msg store.HistoryMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.Must(uuid.NewV7())
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.convs[msg.ConversationID], msg)
	if len(msgs) > s.limit {
		msgs = msgs[len(msgs)-s.limit:]
	}
	s.convs[msg.ConversationID] = msgs
	return nil
}

func (s *HistoryStore) Recent(_ context.Context, conversationID string, limit int) ([]store.HistoryMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.convs[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]store.HistoryMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Search does a case-insensitive match on every query word, newest first.
func (s *HistoryStore) Search(_ context.Context, conversationID, query string, limit int) ([]store.HistoryMessage, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.convs[conversationID]

	var out []store.HistoryMessage
	for i := len(msgs) - 1; i >= 0; i-- {
		content := strings.ToLower(msgs[i].Content)
		match := true
		for _, w := range words {
			if !strings.Contains(content, w) {
				match = false
				break
			}
		}
		if match {
			out = append(out, msgs[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *HistoryStore) Close() error { return nil }
