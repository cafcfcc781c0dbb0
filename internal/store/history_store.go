package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryMessage is one entry of a conversation's chat history.
type HistoryMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// HistoryStore persists the per-conversation chat history that the response
// engine reads. Each conversation keeps at most the configured number of
// recent messages.
type HistoryStore interface {
	Append(ctx context.Context, msg HistoryMessage) error
	// Recent returns up to limit messages, oldest first.
	Recent(ctx context.Context, conversationID string, limit int) ([]HistoryMessage, error)
	// Search returns up to limit messages matching query, best match first.
	Search(ctx context.Context, conversationID, query string, limit int) ([]HistoryMessage, error)
	Close() error
}
