package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goturn/internal/bus"
	"github.com/nextlevelbuilder/goturn/internal/channels"
	"github.com/nextlevelbuilder/goturn/internal/config"
	"github.com/nextlevelbuilder/goturn/internal/conversation"
)

var errBridgeDown = errors.New("whatsapp bridge not connected")

// BridgeChannel connects to a WhatsApp bridge via WebSocket.
// The bridge (e.g. whatsapp-web.js based) handles the actual WhatsApp
// protocol; this channel just sends/receives JSON frames over WS.
type BridgeChannel struct {
	*channels.BaseChannel
	url       string
	onInbound bus.MessageHandler

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge creates a bridge channel from config.
func NewBridge(cfg config.WhatsAppConfig, onInbound bus.MessageHandler) (*BridgeChannel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required for the bridge transport")
	}
	return &BridgeChannel{
		BaseChannel: channels.NewBaseChannel("bridge", cfg.AllowFrom),
		url:         cfg.BridgeURL,
		onInbound:   onInbound,
	}, nil
}

// Start connects to the bridge and begins listening. A failed first dial is
// not fatal; the listen loop keeps retrying.
func (c *BridgeChannel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp bridge channel", "bridge_url", c.url)

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	if err := c.connect(); err != nil {
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()
	return nil
}

// Stop closes the connection and waits for the listen loop to exit.
func (c *BridgeChannel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp bridge channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	if c.done != nil {
		<-c.done
	}
	return nil
}

// SendText writes a message frame to the bridge.
func (c *BridgeChannel) SendText(_ context.Context, to, text string) channels.Delivery {
	return c.write(map[string]string{
		"type":    "message",
		"to":      conversation.Normalize(to),
		"content": text,
	})
}

// SendPresence writes a presence frame to the bridge.
func (c *BridgeChannel) SendPresence(_ context.Context, to string, p channels.Presence) channels.Delivery {
	return c.write(map[string]string{
		"type":     "presence",
		"to":       conversation.Normalize(to),
		"presence": string(p),
	})
}

func (c *BridgeChannel) write(frame map[string]string) channels.Delivery {
	data, err := json.Marshal(frame)
	if err != nil {
		return channels.Failed(0, fmt.Errorf("marshal bridge frame: %w", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return channels.Failed(0, errBridgeDown)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return channels.Failed(0, fmt.Errorf("write bridge frame: %w", err))
	}
	return channels.Delivered(0)
}

// connect establishes the WebSocket connection to the bridge.
func (c *BridgeChannel) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.url)
	return nil
}

// listenLoop reads frames from the bridge with automatic reconnection.
func (c *BridgeChannel) listenLoop() {
	defer close(c.done)
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, 30*time.Second)
				continue
			}

			backoff = time.Second
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				slog.Warn("whatsapp read error, will reconnect", "error", err)
			}

			c.mu.Lock()
			if c.conn == conn {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			continue
		}

		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid whatsapp bridge frame", "error", err)
			continue
		}
		if frame.Type == "message" {
			c.handleIncomingMessage(frame)
		}
	}
}

// bridgeFrame is an inbound bridge frame:
// {"type":"message","from":"...","chat":"...","content":"...","id":"...","from_me":false,"sent_by_api":false,"media_type":""}
type bridgeFrame struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	Chat      string `json:"chat"`
	Content   string `json:"content"`
	ID        string `json:"id"`
	FromMe    bool   `json:"from_me"`
	SentByAPI bool   `json:"sent_by_api"`
	MediaType string `json:"media_type"`
}

func (c *BridgeChannel) handleIncomingMessage(f bridgeFrame) {
	chatID := f.Chat
	if chatID == "" {
		chatID = f.From
	}
	if strings.HasSuffix(chatID, "@g.us") {
		slog.Debug("whatsapp bridge group message ignored", "chat_id", chatID)
		return
	}

	// Outgoing messages name the customer in the chat, not the sender.
	sender := f.From
	if f.FromMe || f.SentByAPI {
		sender = chatID
	}
	phone, ok := cleanNumber(sender)
	if !ok {
		return
	}

	msgType := classify(map[string]any{"type": f.MediaType})
	content := withMediaPlaceholder(msgType, strings.TrimSpace(f.Content))
	if content == "" {
		return
	}

	slog.Debug("whatsapp bridge message received",
		"sender_id", phone,
		"preview", channels.Truncate(content, 50),
	)

	if c.onInbound != nil {
		c.onInbound(c.ctx, bus.InboundMessage{
			Channel:   "whatsapp",
			SenderID:  phone,
			Content:   content,
			MessageID: f.ID,
			Type:      msgType,
			FromMe:    f.FromMe || f.SentByAPI,
			SentByAPI: f.SentByAPI,
		})
	}
}
