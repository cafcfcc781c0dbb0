package channels

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowed(t *testing.T) {
	open := NewBaseChannel("uaz", nil)
	assert.True(t, open.IsAllowed("anyone"))
	assert.False(t, open.HasAllowList())

	c := NewBaseChannel("uaz", []string{"+55 11 99999-0000", "ops-team"})
	assert.True(t, c.IsAllowed("5511999990000"))
	assert.True(t, c.IsAllowed("ops-team"))
	assert.False(t, c.IsAllowed("5511888880000"))
	assert.False(t, c.IsAllowed(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "leite p...", Truncate("leite pão arroz", 10))
}

func TestWebhookRateLimiter(t *testing.T) {
	off := NewWebhookRateLimiter(0, 0)
	assert.False(t, off.Enabled())
	for i := 0; i < 100; i++ {
		assert.True(t, off.Allow("k"))
	}

	r := NewWebhookRateLimiter(60, 3)
	assert.True(t, r.Enabled())
	for i := 0; i < 3; i++ {
		assert.True(t, r.Allow("5511"), "burst %d", i)
	}
	assert.False(t, r.Allow("5511"))
	assert.True(t, r.Allow("5522"), "keys are independent")
}

func TestWebhookRateLimiterBoundsKeys(t *testing.T) {
	r := NewWebhookRateLimiter(60, 1)
	for i := 0; i < maxTrackedKeys+10; i++ {
		r.Allow(fmt.Sprintf("k%d", i))
	}
	assert.LessOrEqual(t, len(r.entries), maxTrackedKeys)
}
