package whatsapp

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goturn/internal/bus"
	"github.com/nextlevelbuilder/goturn/internal/channels"
	"github.com/nextlevelbuilder/goturn/internal/config"
)

// Channel is a WhatsApp transport: it sends replies, filters senders and
// owns any long-lived connection.
type Channel interface {
	channels.Sender
	IsAllowed(senderID string) bool
	HasAllowList() bool
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// New builds the transport selected by cfg.Transport. Inbound messages
// from the bridge transport are passed to onInbound; the uaz transport
// receives them through the HTTP webhook instead.
func New(cfg config.WhatsAppConfig, onInbound bus.MessageHandler) (Channel, error) {
	switch cfg.Transport {
	case "", "uaz":
		return NewUAZ(cfg)
	case "bridge":
		return NewBridge(cfg, onInbound)
	default:
		return nil, fmt.Errorf("unknown whatsapp transport %q", cfg.Transport)
	}
}
