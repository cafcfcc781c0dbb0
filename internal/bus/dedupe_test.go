package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupeCache(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	d := NewDedupeCache(20*time.Minute, 2)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate(""))
	assert.False(t, d.IsDuplicate(""))

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))

	now = now.Add(21 * time.Minute)
	assert.False(t, d.IsDuplicate("a"), "expired keys are forgotten")

	assert.False(t, d.IsDuplicate("b"))
	assert.False(t, d.IsDuplicate("c"))
	assert.False(t, d.IsDuplicate("a"), "oldest key evicted at capacity")
	assert.LessOrEqual(t, len(d.seen), 2)
}
