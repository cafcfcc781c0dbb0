// Package ingest is the inbound half of the pipeline: it filters webhook
// messages, buffers customer fragments and arms the debounce watcher.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goturn/internal/bus"
	"github.com/nextlevelbuilder/goturn/internal/channels"
	"github.com/nextlevelbuilder/goturn/internal/conversation"
	"github.com/nextlevelbuilder/goturn/internal/store"
)

// Status is the webhook-visible outcome of one inbound message.
type Status string

const (
	StatusIgnored     Status = "ignored"
	StatusIgnoredSelf Status = "ignored_self"
	StatusDuplicate   Status = "duplicate"
	StatusRateLimited Status = "rate_limited"
	StatusCooldown    Status = "cooldown"
	StatusBuffering   Status = "buffering"
	StatusImmediate   Status = "immediate"
	// StatusDropped means a cooldown was active and the fragment could not
	// be buffered either; nothing will answer it.
	StatusDropped Status = "dropped"
)

// Outcome reports what Handle did with a message.
type Outcome struct {
	Status         Status `json:"status"`
	ConversationID string `json:"conversation_id,omitempty"`
	// CooldownRemaining is the remaining cooldown in seconds when Status is
	// StatusCooldown.
	CooldownRemaining int `json:"cooldown_remaining,omitempty"`
}

// Scheduler arms debounce watchers. Implemented by debounce.Coordinator.
type Scheduler interface {
	Arm(id string) bool
	Dispatch(id, text string)
}

// Config wires the ingestor. Dedupe, RateLimit, Allow and History are optional.
type Config struct {
	Buffer    *conversation.Buffer
	Cooldown  *conversation.Cooldown
	Scheduler Scheduler

	Dedupe    *bus.DedupeCache
	RateLimit *channels.WebhookRateLimiter
	Allow     func(senderID string) bool
	History   store.HistoryStore

	// CooldownOnOperatorReply starts the cooldown when a human replies
	// from the business account.
	CooldownOnOperatorReply bool
	CooldownTTL             time.Duration
}

// Ingestor routes inbound messages.
type Ingestor struct {
	cfg Config
}

func New(cfg Config) *Ingestor {
	return &Ingestor{cfg: cfg}
}

// Handle applies, in order: allowlist, dedupe, self-message handling, rate
// limit, cooldown gate, buffer push and watcher arming.
func (in *Ingestor) Handle(ctx context.Context, msg bus.InboundMessage) Outcome {
	id := conversation.Normalize(msg.SenderID)
	if id == "" || msg.Content == "" {
		return Outcome{Status: StatusIgnored}
	}
	out := Outcome{ConversationID: id}

	if in.cfg.Allow != nil && !in.cfg.Allow(id) {
		slog.Debug("ingest: sender not allowed", "conversation", id)
		out.Status = StatusIgnored
		return out
	}

	if in.cfg.Dedupe != nil && msg.MessageID != "" && in.cfg.Dedupe.IsDuplicate(msg.Channel+":"+msg.MessageID) {
		slog.Debug("ingest: duplicate message", "conversation", id, "message_id", msg.MessageID)
		out.Status = StatusDuplicate
		return out
	}

	if msg.FromMe {
		in.handleSelf(ctx, id, msg)
		out.Status = StatusIgnoredSelf
		return out
	}

	if in.cfg.RateLimit != nil && !in.cfg.RateLimit.Allow(id) {
		slog.Warn("ingest: rate limited", "conversation", id)
		out.Status = StatusRateLimited
		return out
	}

	if active, remaining := in.cfg.Cooldown.IsActive(ctx, id); active {
		// Buffered so the customer is not lost; the next push after the
		// cooldown arms a watcher that picks these fragments up.
		out.CooldownRemaining = remaining
		if !in.cfg.Buffer.Push(ctx, id, msg.Content) {
			slog.Warn("ingest: cooldown active and buffer full, fragment dropped",
				"conversation", id, "preview", channels.Truncate(msg.Content, 40))
			out.Status = StatusDropped
			return out
		}
		slog.Info("ingest: cooldown active, buffered without arming", "conversation", id, "remaining", remaining)
		out.Status = StatusCooldown
		return out
	}

	if !in.cfg.Buffer.Push(ctx, id, msg.Content) {
		slog.Warn("ingest: buffer full, dispatching immediately", "conversation", id)
		in.cfg.Scheduler.Dispatch(id, msg.Content)
		out.Status = StatusImmediate
		return out
	}

	if in.cfg.Scheduler.Arm(id) {
		slog.Debug("ingest: watcher armed", "conversation", id)
	}
	slog.Debug("ingest: buffered", "conversation", id, "preview", channels.Truncate(msg.Content, 40))
	out.Status = StatusBuffering
	return out
}

// handleSelf records messages written from the business account. Echoes of
// our own API sends are already in history.
func (in *Ingestor) handleSelf(ctx context.Context, id string, msg bus.InboundMessage) {
	if msg.SentByAPI {
		return
	}

	if in.cfg.History != nil {
		id7, err := uuid.NewV7()
		if err != nil {
			id7 = uuid.New()
		}
		if err := in.cfg.History.Append(ctx, store.HistoryMessage{
			ID:             id7,
			ConversationID: id,
			Role:           store.RoleAssistant,
			Content:        msg.Content,
			CreatedAt:      time.Now().UTC(),
		}); err != nil {
			slog.Warn("ingest: history append failed", "conversation", id, "error", err)
		}
	}

	if in.cfg.CooldownOnOperatorReply {
		if err := in.cfg.Cooldown.Activate(ctx, id, in.cfg.CooldownTTL); err != nil {
			slog.Warn("ingest: operator cooldown failed", "conversation", id, "error", err)
		}
	}
}
