package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// DefaultSessionResetNotice is prefixed to the first turn after the session
// window expired, telling the engine to start a new order.
const DefaultSessionResetNotice = "[SISTEMA: A sessão anterior expirou (passou de 40min). IGNORE o pedido antigo e comece um NOVO PEDIDO do zero agora.]"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			MaxMessageChars: 4000,
			RateLimitRPM:    60,
		},
		Store: StoreConfig{
			DialTimeoutMs: 2000,
			OpTimeoutMs:   1000,
		},
		Buffer: BufferConfig{
			TTLSeconds:           300,
			PollIntervalMs:       3500,
			StallThreshold:       3,
			MaxWatchers:          1024,
			MaxFallbackFragments: 200,
		},
		Windows: WindowsConfig{
			SessionMinutes:          40,
			EditWindowMinutes:       10,
			CooldownSeconds:         60,
			CooldownOnOperatorReply: true,
			SessionResetNotice:      DefaultSessionResetNotice,
		},
		Pacing: PacingConfig{
			ReadDelayMinMs:    2000,
			ReadDelayMaxMs:    4000,
			SegmentDelayMinMs: 1000,
			SegmentDelayMaxMs: 2500,
			FirstSendDelayMs:  500,
			SegmentDelimiter:  "|||",
		},
		Engine: EngineConfig{
			TimeoutSec:     120,
			FailureMessage: "Erro ao processar.",
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{Transport: "uaz"},
		},
		Database: DatabaseConfig{
			HistoryLimit: 50,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "goturn",
		},
		MCP: MCPConfig{
			Path: "/mcp",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// Gateway
	envStr("GOTURN_HOST", &c.Gateway.Host)
	envInt("GOTURN_PORT", &c.Gateway.Port)
	envStr("GOTURN_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("GOTURN_WEBHOOK_TOKEN", &c.Gateway.WebhookToken)

	// Shared store
	envStr("GOTURN_REDIS_ADDR", &c.Store.RedisAddr)
	envStr("GOTURN_REDIS_PASSWORD", &c.Store.RedisPassword)
	envInt("GOTURN_REDIS_DB", &c.Store.RedisDB)

	// Engine
	envStr("GOTURN_ENGINE_URL", &c.Engine.URL)
	envStr("GOTURN_ENGINE_TOKEN", &c.Engine.Token)

	// WhatsApp
	envStr("GOTURN_WHATSAPP_TRANSPORT", &c.Channels.WhatsApp.Transport)
	envStr("GOTURN_WHATSAPP_API_URL", &c.Channels.WhatsApp.APIURL)
	envStr("GOTURN_WHATSAPP_TOKEN", &c.Channels.WhatsApp.Token)
	envStr("GOTURN_WHATSAPP_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)
	if v := os.Getenv("GOTURN_WHATSAPP_ALLOW_FROM"); v != "" {
		c.Channels.WhatsApp.AllowFrom = strings.Split(v, ",")
	}

	// Database
	envStr("GOTURN_POSTGRES_DSN", &c.Database.PostgresDSN)

	// Telemetry
	envStr("GOTURN_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GOTURN_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GOTURN_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("GOTURN_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("GOTURN_TELEMETRY_INSECURE", &c.Telemetry.Insecure)

	envBool("GOTURN_MCP_ENABLED", &c.MCP.Enabled)
}
