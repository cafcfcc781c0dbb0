package pg

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goturn/internal/store"
)

// Runs against a migrated database when GOTURN_TEST_POSTGRES_DSN is set.
func TestPGHistoryStore(t *testing.T) {
	dsn := os.Getenv("GOTURN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GOTURN_TEST_POSTGRES_DSN not set")
	}
	db, err := OpenDB(dsn)
	require.NoError(t, err)
	s := NewPGHistoryStore(db, 2)
	defer s.Close()

	ctx := context.Background()
	conv := "5500000000001"
	_, err = db.ExecContext(ctx, `DELETE FROM chat_history WHERE conversation_id = $1`, conv)
	require.NoError(t, err)

	for _, c := range []string{"leite", "pão", "arroz integral"} {
		require.NoError(t, s.Append(ctx, store.HistoryMessage{ConversationID: conv, Role: store.RoleUser, Content: c}))
	}

	recent, err := s.Recent(ctx, conv, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "pão", recent[0].Content)

	found, err := s.Search(ctx, conv, "arroz", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "arroz integral", found[0].Content)
}
