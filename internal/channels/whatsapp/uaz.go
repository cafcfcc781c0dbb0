package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nextlevelbuilder/goturn/internal/channels"
	"github.com/nextlevelbuilder/goturn/internal/config"
	"github.com/nextlevelbuilder/goturn/internal/conversation"
)

const (
	sendTimeout     = 10 * time.Second
	presenceTimeout = 5 * time.Second
)

// UAZChannel talks to a UAZ WhatsApp HTTP gateway. Inbound traffic arrives
// through the webhook handler, so Start and Stop have nothing to do.
type UAZChannel struct {
	*channels.BaseChannel
	baseURL string
	token   string
	client  *http.Client
}

// NewUAZ creates a UAZ channel. Only the scheme and host of api_url are used.
func NewUAZ(cfg config.WhatsAppConfig) (*UAZChannel, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("whatsapp api_url is required for the uaz transport")
	}
	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid whatsapp api_url %q", cfg.APIURL)
	}
	return &UAZChannel{
		BaseChannel: channels.NewBaseChannel("uaz", cfg.AllowFrom),
		baseURL:     u.Scheme + "://" + u.Host,
		token:       cfg.Token,
		client:      &http.Client{},
	}, nil
}

func (c *UAZChannel) Start(context.Context) error { return nil }
func (c *UAZChannel) Stop(context.Context) error  { return nil }

// SendText posts one message bubble.
func (c *UAZChannel) SendText(ctx context.Context, to, text string) channels.Delivery {
	return c.post(ctx, "/send/text", sendTimeout, map[string]string{
		"number":     conversation.Normalize(to),
		"text":       text,
		"openTicket": "1",
	})
}

// SendPresence updates the typing indicator.
func (c *UAZChannel) SendPresence(ctx context.Context, to string, p channels.Presence) channels.Delivery {
	return c.post(ctx, "/message/presence", presenceTimeout, map[string]string{
		"number":   conversation.Normalize(to),
		"presence": string(p),
	})
}

func (c *UAZChannel) post(ctx context.Context, path string, timeout time.Duration, payload any) channels.Delivery {
	body, err := json.Marshal(payload)
	if err != nil {
		return channels.Failed(0, fmt.Errorf("marshal %s payload: %w", path, err))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return channels.Failed(0, fmt.Errorf("create %s request: %w", path, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return channels.Failed(0, fmt.Errorf("uaz %s: %w", path, err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("uaz: non-2xx response", "path", path, "status", resp.StatusCode)
		return channels.Failed(resp.StatusCode, fmt.Errorf("uaz %s: HTTP %d", path, resp.StatusCode))
	}
	return channels.Delivered(resp.StatusCode)
}
