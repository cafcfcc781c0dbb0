package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goturn/internal/store"
)

// PGHistoryStore implements store.HistoryStore backed by the chat_history table.
type PGHistoryStore struct {
	db    *sql.DB
	limit int
}

// NewPGHistoryStore keeps at most limit messages per conversation.
func NewPGHistoryStore(db *sql.DB, limit int) *PGHistoryStore {
	if limit <= 0 {
		limit = 50
	}
	return &PGHistoryStore{db: db, limit: limit}
}

func (s *PGHistoryStore) Append(ctx context.Context, msg store.HistoryMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.Must(uuid.NewV7())
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_history (id, conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	// UUIDv7 ids sort by creation time.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_history
		 WHERE conversation_id = $1 AND id NOT IN (
		   SELECT id FROM chat_history WHERE conversation_id = $1
		   ORDER BY id DESC LIMIT $2)`,
		msg.ConversationID, s.limit,
	); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return tx.Commit()
}

func (s *PGHistoryStore) Recent(ctx context.Context, conversationID string, limit int) ([]store.HistoryMessage, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM (
		   SELECT id, conversation_id, role, content, created_at FROM chat_history
		   WHERE conversation_id = $1 ORDER BY id DESC LIMIT $2
		 ) recent ORDER BY id ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

func (s *PGHistoryStore) Search(ctx context.Context, conversationID, query string, limit int) ([]store.HistoryMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM chat_history
		 WHERE conversation_id = $1 AND tsv @@ plainto_tsquery('simple', $2)
		 ORDER BY ts_rank(tsv, plainto_tsquery('simple', $2)) DESC, id DESC
		 LIMIT $3`, conversationID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

func (s *PGHistoryStore) Close() error { return s.db.Close() }

func scanHistoryRows(rows *sql.Rows) ([]store.HistoryMessage, error) {
	var out []store.HistoryMessage
	for rows.Next() {
		var m store.HistoryMessage
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = store.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}
