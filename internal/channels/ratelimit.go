package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from senders rotating ids.
	maxTrackedKeys = 4096

	// idleEviction is how long an untouched key is kept.
	idleEviction = 10 * time.Minute
)

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// WebhookRateLimiter applies a per-key token bucket to inbound webhooks.
// Safe for concurrent use.
type WebhookRateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*rateLimitEntry
}

// NewWebhookRateLimiter allows rpm requests per minute per key with the
// given burst. rpm <= 0 disables limiting.
func NewWebhookRateLimiter(rpm, burst int) *WebhookRateLimiter {
	if burst <= 0 {
		burst = 5
	}
	r := &WebhookRateLimiter{burst: burst, entries: make(map[string]*rateLimitEntry)}
	if rpm > 0 {
		r.limit = rate.Limit(float64(rpm) / 60.0)
	}
	return r
}

// Enabled reports whether limiting is active.
func (r *WebhookRateLimiter) Enabled() bool { return r.limit > 0 }

// Allow returns true if the key is within rate limits.
func (r *WebhookRateLimiter) Allow(key string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.lastSeen) >= idleEviction {
				delete(r.entries, k)
			}
		}
		// Hard eviction if still at cap (FIFO-ish via map iteration)
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok {
		e = &rateLimitEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
