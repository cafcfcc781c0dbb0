package conversation

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/nextlevelbuilder/goturn/internal/kv"
)

const DefaultCooldown = 60 * time.Second

// Cooldown suppresses automated replies for a conversation while a human
// operator is handling it. Store failures read as "not in cooldown".
type Cooldown struct {
	store      kv.Store
	defaultTTL time.Duration
}

func NewCooldown(store kv.Store, defaultTTL time.Duration) *Cooldown {
	if defaultTTL <= 0 {
		defaultTTL = DefaultCooldown
	}
	return &Cooldown{store: store, defaultTTL: defaultTTL}
}

// Activate starts or restarts the cooldown. ttl <= 0 uses the default.
func (c *Cooldown) Activate(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.store.Set(ctx, CooldownKey(id), "1", ttl); err != nil {
		return err
	}
	slog.Info("cooldown: activated", "conversation", Normalize(id), "ttl", ttl)
	return nil
}

// IsActive reports whether a cooldown is set and its remaining seconds,
// or -1 when inactive or unknown.
func (c *Cooldown) IsActive(ctx context.Context, id string) (bool, int) {
	key := CooldownKey(id)
	ok, err := c.store.Exists(ctx, key)
	if err != nil || !ok {
		return false, -1
	}
	ttl, err := c.store.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		return true, -1
	}
	return true, int(math.Ceil(ttl.Seconds()))
}
