// Package channels connects the buffering layer to messaging gateways.
// A Sender delivers text and presence updates and reports each outcome as
// an explicit Delivery value; transport failures never panic.
package channels

import (
	"context"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/goturn/internal/conversation"
)

// Presence is the typing indicator state shown to the customer.
type Presence string

const (
	PresenceComposing Presence = "composing"
	PresencePaused    Presence = "paused"
)

// Delivery is the outcome of one gateway call.
type Delivery struct {
	OK     bool
	Status int // transport status code, 0 when the request never completed
	Err    error
}

// Delivered returns a successful Delivery.
func Delivered(status int) Delivery { return Delivery{OK: true, Status: status} }

// Failed returns an unsuccessful Delivery.
func Failed(status int, err error) Delivery { return Delivery{Status: status, Err: err} }

// Sender delivers outbound messages to a conversation.
type Sender interface {
	// Name returns the transport identifier (e.g. "uaz", "bridge").
	Name() string
	SendText(ctx context.Context, to, text string) Delivery
	SendPresence(ctx context.Context, to string, p Presence) Delivery
}

// BaseChannel provides the allowlist shared by channel implementations.
type BaseChannel struct {
	name      string
	allowList []string
}

// NewBaseChannel creates a BaseChannel. An empty allowList admits everyone.
func NewBaseChannel(name string, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, allowList: allowList}
}

func (c *BaseChannel) Name() string { return c.name }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// IsAllowed checks a sender against the allowlist. Entries match either
// verbatim or by their digits, so "+55 11 9999-0000" admits "5511999990000".
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	senderDigits := conversation.Normalize(senderID)
	for _, allowed := range c.allowList {
		allowed = strings.TrimSpace(allowed)
		if allowed == senderID {
			return true
		}
		if d := conversation.Normalize(allowed); d != "" && d == senderDigits {
			return true
		}
	}
	return false
}

// Truncate shortens s to maxWidth display cells, appending "..." if truncated.
func Truncate(s string, maxWidth int) string {
	return runewidth.Truncate(s, maxWidth, "...")
}
