package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, 3500*time.Millisecond, cfg.Buffer.PollInterval())
	assert.Equal(t, 3, cfg.Buffer.StallThreshold)
	assert.Equal(t, 300*time.Second, cfg.Buffer.TTL())
	assert.Equal(t, 40*time.Minute, cfg.Windows.Session())
	assert.Equal(t, 10*time.Minute, cfg.Windows.EditWindow())
	assert.Equal(t, 60*time.Second, cfg.Windows.Cooldown())
	lo, hi := cfg.Pacing.ReadDelay()
	assert.Equal(t, 2*time.Second, lo)
	assert.Equal(t, 4*time.Second, hi)
	lo, hi = cfg.Pacing.SegmentDelay()
	assert.Equal(t, time.Second, lo)
	assert.Equal(t, 2500*time.Millisecond, hi)
	assert.Equal(t, 500*time.Millisecond, cfg.Pacing.FirstSendDelay())
	assert.Equal(t, "|||", cfg.Pacing.SegmentDelimiter)
}

func TestLoadJSON5AndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// comments and trailing commas are fine
		gateway: { port: 9000, },
		store: { redis_addr: "redis:6379" },
		windows: { cooldown_seconds: 600 },
		channels: { whatsapp: { allow_from: [5511999990000, "5511888880000"] } },
	}`), 0o600))

	t.Setenv("GOTURN_PORT", "9100")
	t.Setenv("GOTURN_REDIS_PASSWORD", "pw")
	t.Setenv("GOTURN_POSTGRES_DSN", "postgres://x")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Gateway.Port)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, "pw", cfg.Store.RedisPassword)
	assert.Equal(t, "postgres://x", cfg.Database.PostgresDSN)
	assert.Equal(t, 10*time.Minute, cfg.Windows.Cooldown())
	assert.Equal(t, FlexibleStringSlice{"5511999990000", "5511888880000"}, cfg.Channels.WhatsApp.AllowFrom)
	assert.Equal(t, 40, cfg.Windows.SessionMinutes, "unset fields keep defaults")
}

func TestLoadRejectsInvalidPacing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{pacing: {read_delay_min_ms: 5000}}`), 0o600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "read_delay_min_ms")
}
