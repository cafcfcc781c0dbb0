package conversation

import "context"

// State is a read-only snapshot of a conversation's buffer and windows.
type State struct {
	ConversationID    string `json:"conversation_id"`
	BufferedFragments int    `json:"buffered_fragments"`
	SessionActive     bool   `json:"session_active"`
	EditWindowOpen    bool   `json:"edit_window_open"`
	CooldownActive    bool   `json:"cooldown_active"`
	CooldownRemaining int    `json:"cooldown_remaining"`
}

// Inspect reads the state of id without refreshing any window. A nil
// buffer reports zero fragments.
func Inspect(ctx context.Context, id string, b *Buffer, s *SessionWindow, e *EditWindow, c *Cooldown) State {
	id = Normalize(id)
	st := State{
		ConversationID: id,
		SessionActive:  s.Active(ctx, id),
		EditWindowOpen: e.IsOpen(ctx, id),
	}
	st.CooldownActive, st.CooldownRemaining = c.IsActive(ctx, id)
	if b != nil {
		st.BufferedFragments = b.Len(ctx, id)
	}
	return st
}
