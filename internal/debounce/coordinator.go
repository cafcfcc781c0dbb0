// Package debounce coalesces bursts of inbound fragments into one turn per
// conversation. One watcher runs per armed conversation; it polls the
// buffer length and, once the length has held still for enough polls,
// drains the buffer and hands the joined text to the dispatch handler.
package debounce

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goturn/internal/clock"
	"github.com/nextlevelbuilder/goturn/internal/conversation"
)

const (
	DefaultPollInterval   = 3500 * time.Millisecond
	DefaultStallThreshold = 3
	DefaultMaxWatchers    = 1024
)

// Buffer is the part of conversation.Buffer a watcher needs.
type Buffer interface {
	Len(ctx context.Context, id string) int
	Drain(ctx context.Context, id string) []string
}

// Handler processes one coalesced turn. It runs on the watcher goroutine.
type Handler func(ctx context.Context, id, text string)

// Options tunes the watchers. Zero values take the defaults.
type Options struct {
	PollInterval   time.Duration
	StallThreshold int
	MaxWatchers    int
	Clock          clock.Clock
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.StallThreshold <= 0 {
		o.StallThreshold = DefaultStallThreshold
	}
	if o.MaxWatchers <= 0 {
		o.MaxWatchers = DefaultMaxWatchers
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	return o
}

// Coordinator owns the watcher registry. At most one slot exists per
// conversation and every turn for it runs on that slot's goroutine, so
// turns for one conversation never overlap. At most MaxWatchers slots run
// at once and the rest wait in FIFO order. The registry is process-local.
type Coordinator struct {
	buffer  Buffer
	handler Handler
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	armed   map[string]*slot
	pending []string
	running int
	stopped bool

	wg sync.WaitGroup
}

// slot is the registry entry of one conversation. watch is set while a
// debounce cycle is wanted or in progress; texts are immediate turns
// waiting to run after it.
type slot struct {
	watch bool
	texts []string
}

// New creates a coordinator. Call Stop to abandon outstanding watchers.
func New(buffer Buffer, handler Handler, opts Options) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		buffer:  buffer,
		handler: handler,
		opts:    opts.withDefaults(),
		ctx:     ctx,
		cancel:  cancel,
		armed:   make(map[string]*slot),
	}
}

// Arm starts a watcher for id unless one is already armed. It reports
// whether this call armed it.
func (c *Coordinator) Arm(id string) bool {
	id = conversation.Normalize(id)
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}
	if s, ok := c.armed[id]; ok {
		if s.watch {
			return false
		}
		// Only immediate turns are queued; watch once they are done.
		s.watch = true
		return true
	}
	c.admitLocked(id, &slot{watch: true})
	return true
}

// Dispatch runs handler for text outside the debounce cycle. Used when a
// fragment could not be buffered. If the conversation already has a slot
// the text runs on it after the current turn.
func (c *Coordinator) Dispatch(id, text string) {
	id = conversation.Normalize(id)
	if id == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		slog.Warn("debounce: immediate turn dropped after stop", "conversation", id)
		return
	}
	if s, ok := c.armed[id]; ok {
		s.texts = append(s.texts, text)
		slog.Debug("debounce: immediate turn queued behind watcher", "conversation", id, "queued", len(s.texts))
		return
	}
	c.admitLocked(id, &slot{texts: []string{text}})
}

// Active reports whether a watcher is running or queued for id.
func (c *Coordinator) Active(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.armed[conversation.Normalize(id)]
	return ok
}

// Stats returns the running and queued slot counts.
func (c *Coordinator) Stats() (running, pending int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running, len(c.pending)
}

// Stop abandons every watcher, including in-flight dispatches, and waits
// for their goroutines to exit. Buffered fragments stay in the store.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	for _, id := range c.pending {
		delete(c.armed, id)
	}
	c.pending = nil
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) admitLocked(id string, s *slot) {
	c.armed[id] = s
	if c.running < c.opts.MaxWatchers {
		c.running++
		c.startLocked(id)
		return
	}
	c.pending = append(c.pending, id)
	slog.Debug("debounce: watcher queued", "conversation", id, "pending", len(c.pending))
}

func (c *Coordinator) startLocked(id string) {
	c.wg.Add(1)
	go c.run(id, c.armed[id])
}

// run serves one slot until it has nothing left to do.
func (c *Coordinator) run(id string, s *slot) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		texts := s.texts
		s.texts = nil
		watch := s.watch
		c.mu.Unlock()

		for _, text := range texts {
			if c.ctx.Err() != nil {
				break
			}
			c.dispatchNow(id, text)
		}

		if watch && c.ctx.Err() == nil {
			completed := c.watch(id)
			// Fragments pushed while the turn was being dispatched found the
			// watcher still armed and did not arm a new one.
			again := completed && c.ctx.Err() == nil && c.buffer.Len(c.ctx, id) > 0
			if again {
				slog.Debug("debounce: re-arming for late fragments", "conversation", id)
			}
			c.mu.Lock()
			s.watch = again
			c.mu.Unlock()
		}

		if c.releaseIfIdle(id, s) {
			return
		}
	}
}

func (c *Coordinator) dispatchNow(id, text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("debounce: immediate dispatch panicked", "conversation", id, "panic", r)
		}
	}()
	slog.Info("debounce: immediate turn", "conversation", id, "chars", len(text))
	c.handler(c.ctx, id, text)
}

// watch runs one watcher lifecycle. It reports false when the watcher was
// abandoned or aborted.
func (c *Coordinator) watch(id string) (completed bool) {
	defer func() {
		if r := recover(); r != nil {
			completed = false
			slog.Error("debounce: watcher aborted", "conversation", id, "panic", r)
			if left := c.buffer.Drain(context.WithoutCancel(c.ctx), id); len(left) > 0 {
				slog.Warn("debounce: discarded fragments after abort", "conversation", id, "count", len(left))
			}
		}
	}()

	ctx := c.ctx
	last := c.buffer.Len(ctx, id)
	stalls := 0
	slog.Debug("debounce: watcher started", "conversation", id, "fragments", last)

	for stalls < c.opts.StallThreshold {
		if err := clock.Sleep(ctx, c.opts.Clock, c.opts.PollInterval); err != nil {
			slog.Debug("debounce: watcher abandoned", "conversation", id)
			return false
		}
		cur := c.buffer.Len(ctx, id)
		if cur > last {
			stalls = 0
			last = cur
			continue
		}
		stalls++
	}

	text := Join(c.buffer.Drain(ctx, id))
	if text == "" {
		slog.Debug("debounce: nothing to dispatch", "conversation", id)
		return true
	}

	slog.Info("debounce: turn ready", "conversation", id, "chars", len(text))
	c.handler(ctx, id, text)
	return true
}

// releaseIfIdle frees the slot unless more work arrived for it. After Stop
// the slot is always freed and queued immediate turns are dropped.
func (c *Coordinator) releaseIfIdle(id string, s *slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() == nil && (s.watch || len(s.texts) > 0) {
		return false
	}
	if len(s.texts) > 0 {
		slog.Warn("debounce: immediate turns dropped on shutdown", "conversation", id, "count", len(s.texts))
	}

	delete(c.armed, id)
	c.running--
	for c.running < c.opts.MaxWatchers && len(c.pending) > 0 && !c.stopped {
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.running++
		c.startLocked(next)
	}
	return true
}

// Join concatenates the non-blank fragments with single spaces.
func Join(fragments []string) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
