package bus

import (
	"sync"
	"time"
)

// DedupeCache remembers recently seen message keys so webhook retries do
// not produce duplicate turns. Entries expire after ttl; the cache holds at
// most max keys, evicting the oldest first.
type DedupeCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	seen  map[string]time.Time
	order []string
	now   func() time.Time
}

func NewDedupeCache(ttl time.Duration, max int) *DedupeCache {
	return &DedupeCache{ttl: ttl, max: max, seen: make(map[string]time.Time), now: time.Now}
}

// IsDuplicate records key and reports whether it was already present.
// Empty keys are never duplicates.
func (d *DedupeCache) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.pruneLocked(now)
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen[key] = now
	d.order = append(d.order, key)
	for len(d.seen) > d.max && len(d.order) > 0 {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	return false
}

func (d *DedupeCache) pruneLocked(now time.Time) {
	i := 0
	for ; i < len(d.order); i++ {
		k := d.order[i]
		at, ok := d.seen[k]
		if ok && now.Sub(at) < d.ttl {
			break
		}
		if ok {
			delete(d.seen, k)
		}
	}
	d.order = d.order[i:]
}
