// Package conversation holds the per-conversation state primitives: the
// message buffer, cooldown gate, session window and edit window. Every
// primitive normalizes its conversation id and owns its degraded default
// when the shared store is unreachable.
package conversation

import "strings"

const (
	bufferPrefix     = "msgbuf:"
	cooldownPrefix   = "cooldown:"
	sessionPrefix    = "session_order:"
	editWindowPrefix = "edit_window:"
)

// Normalize keeps only the ASCII digits of raw. It is idempotent.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func BufferKey(id string) string     { return bufferPrefix + Normalize(id) }
func CooldownKey(id string) string   { return cooldownPrefix + Normalize(id) }
func SessionKey(id string) string    { return sessionPrefix + Normalize(id) }
func EditWindowKey(id string) string { return editWindowPrefix + Normalize(id) }
