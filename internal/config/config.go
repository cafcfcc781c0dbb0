package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON, so phone
// numbers may be written unquoted.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the goturn gateway.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Store     StoreConfig     `json:"store"`
	Buffer    BufferConfig    `json:"buffer"`
	Windows   WindowsConfig   `json:"windows"`
	Pacing    PacingConfig    `json:"pacing"`
	Engine    EngineConfig    `json:"engine"`
	Channels  ChannelsConfig  `json:"channels"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	MCP       MCPConfig       `json:"mcp,omitempty"`
}

// GatewayConfig controls the HTTP listener.
type GatewayConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Token           string `json:"token,omitempty"`          // bearer token for admin and direct-message endpoints
	WebhookToken    string `json:"webhook_token,omitempty"`  // optional shared secret for inbound webhooks (?token= or X-Webhook-Token)
	RateLimitRPM    int    `json:"rate_limit_rpm,omitempty"` // per-conversation inbound webhooks per minute (0 = disabled)
	MaxMessageChars int    `json:"max_message_chars,omitempty"`
}

// StoreConfig points at the shared TTL store. An empty RedisAddr runs
// everything in process memory (single-process mode).
type StoreConfig struct {
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"` // from env GOTURN_REDIS_PASSWORD only
	RedisDB       int    `json:"redis_db,omitempty"`
	DialTimeoutMs int    `json:"dial_timeout_ms,omitempty"`
	OpTimeoutMs   int    `json:"op_timeout_ms,omitempty"`
}

// BufferConfig tunes fragment buffering and the debounce watchers.
type BufferConfig struct {
	TTLSeconds           int `json:"ttl_seconds"`            // buffer lifetime, applied on first push (default 300)
	PollIntervalMs       int `json:"poll_interval_ms"`       // watcher poll period (default 3500)
	StallThreshold       int `json:"stall_threshold"`        // consecutive quiet polls before flushing (default 3)
	MaxWatchers          int `json:"max_watchers"`           // concurrent watcher cap; extra conversations queue (default 1024)
	MaxFallbackFragments int `json:"max_fallback_fragments"` // per-conversation local fallback cap (default 200)
}

// WindowsConfig holds the conversation state windows.
type WindowsConfig struct {
	SessionMinutes          int    `json:"session_minutes"`            // sliding order session (default 40)
	EditWindowMinutes       int    `json:"edit_window_minutes"`        // post-order amendment window (default 10)
	CooldownSeconds         int    `json:"cooldown_seconds"`           // default cooldown length (default 60)
	CooldownOnOperatorReply bool   `json:"cooldown_on_operator_reply"` // a human reply from the business number starts a cooldown
	SessionResetNotice      string `json:"session_reset_notice,omitempty"`
}

// PacingConfig shapes the human-like reply rhythm.
type PacingConfig struct {
	ReadDelayMinMs    int    `json:"read_delay_min_ms"`
	ReadDelayMaxMs    int    `json:"read_delay_max_ms"`
	SegmentDelayMinMs int    `json:"segment_delay_min_ms"`
	SegmentDelayMaxMs int    `json:"segment_delay_max_ms"`
	FirstSendDelayMs  int    `json:"first_send_delay_ms"` // pause before the first segment (-1 disables)
	SegmentDelimiter  string `json:"segment_delimiter"`
}

// EngineConfig locates the response engine.
type EngineConfig struct {
	URL            string `json:"url"`
	Token          string `json:"-"` // from env GOTURN_ENGINE_TOKEN only
	TimeoutSec     int    `json:"timeout_sec,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"` // sent when the engine call fails
}

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

// WhatsAppConfig selects and configures the WhatsApp transport.
type WhatsAppConfig struct {
	Transport string              `json:"transport"` // "uaz" (default, HTTP API + webhook) or "bridge" (WebSocket)
	APIURL    string              `json:"api_url,omitempty"`
	Token     string              `json:"-"` // from env GOTURN_WHATSAPP_TOKEN only
	BridgeURL string              `json:"bridge_url,omitempty"`
	AllowFrom FlexibleStringSlice `json:"allow_from,omitempty"`
}

// DatabaseConfig configures the Postgres chat history.
// PostgresDSN is NEVER read from config.json (secret), only from env GOTURN_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN  string `json:"-"`
	HistoryLimit int    `json:"history_limit,omitempty"` // messages kept per conversation (default 50)
}

// TelemetryConfig configures OpenTelemetry export for turn spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "goturn"
	Headers     map[string]string `json:"headers,omitempty"`
}

// MCPConfig exposes conversation tools to the engine over MCP.
type MCPConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"` // default "/mcp"
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (b BufferConfig) TTL() time.Duration          { return time.Duration(b.TTLSeconds) * time.Second }
func (b BufferConfig) PollInterval() time.Duration { return ms(b.PollIntervalMs) }

func (w WindowsConfig) Session() time.Duration    { return time.Duration(w.SessionMinutes) * time.Minute }
func (w WindowsConfig) EditWindow() time.Duration { return time.Duration(w.EditWindowMinutes) * time.Minute }
func (w WindowsConfig) Cooldown() time.Duration   { return time.Duration(w.CooldownSeconds) * time.Second }

func (p PacingConfig) ReadDelay() (time.Duration, time.Duration) {
	return ms(p.ReadDelayMinMs), ms(p.ReadDelayMaxMs)
}

func (p PacingConfig) SegmentDelay() (time.Duration, time.Duration) {
	return ms(p.SegmentDelayMinMs), ms(p.SegmentDelayMaxMs)
}

func (p PacingConfig) FirstSendDelay() time.Duration { return ms(p.FirstSendDelayMs) }

func (s StoreConfig) DialTimeout() time.Duration { return ms(s.DialTimeoutMs) }
func (s StoreConfig) OpTimeout() time.Duration   { return ms(s.OpTimeoutMs) }

func (e EngineConfig) Timeout() time.Duration { return time.Duration(e.TimeoutSec) * time.Second }

// Validate rejects settings the runtime cannot honor.
func (c *Config) Validate() error {
	if c.Pacing.ReadDelayMinMs > c.Pacing.ReadDelayMaxMs {
		return fmt.Errorf("pacing: read_delay_min_ms > read_delay_max_ms")
	}
	if c.Pacing.SegmentDelayMinMs > c.Pacing.SegmentDelayMaxMs {
		return fmt.Errorf("pacing: segment_delay_min_ms > segment_delay_max_ms")
	}
	if c.Pacing.SegmentDelimiter == "" {
		return fmt.Errorf("pacing: segment_delimiter must not be empty")
	}
	switch c.Channels.WhatsApp.Transport {
	case "", "uaz", "bridge":
	default:
		return fmt.Errorf("channels.whatsapp.transport: unknown transport %q", c.Channels.WhatsApp.Transport)
	}
	return nil
}
