package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Timers fire only when Advance or
// AdvanceNext moves the clock past their deadline. Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeTimer
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	ch       chan time.Time
	done     bool
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{clock: f, deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.done = true
		t.ch <- f.now
		return t
	}
	f.waiters = append(f.waiters, t)
	return t
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	f := t.clock
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	f.removeLocked(t)
	return true
}

// Advance moves the clock forward by d, firing every timer whose deadline
// falls inside the interval in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.now.Add(d)
	for {
		next := f.earliestLocked()
		if next == nil || next.deadline.After(target) {
			break
		}
		f.now = next.deadline
		f.fireLocked(next)
	}
	f.now = target
}

// AdvanceNext jumps to the earliest pending deadline and fires every timer
// due at that instant. It returns the distance moved and false when no
// timer is pending.
func (f *Fake) AdvanceNext() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.earliestLocked()
	if next == nil {
		return 0, false
	}
	moved := next.deadline.Sub(f.now)
	f.now = next.deadline
	for {
		due := f.earliestLocked()
		if due == nil || due.deadline.After(f.now) {
			break
		}
		f.fireLocked(due)
	}
	return moved, true
}

// Pending reports the number of timers waiting to fire.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// WaitForTimers polls in real time until at least n timers are pending.
// It reports false if timeout elapses first.
func (f *Fake) WaitForTimers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if f.Pending() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *Fake) earliestLocked() *fakeTimer {
	var best *fakeTimer
	for _, w := range f.waiters {
		if best == nil || w.deadline.Before(best.deadline) {
			best = w
		}
	}
	return best
}

func (f *Fake) fireLocked(t *fakeTimer) {
	t.done = true
	f.removeLocked(t)
	select {
	case t.ch <- f.now:
	default:
	}
}

func (f *Fake) removeLocked(t *fakeTimer) {
	for i, w := range f.waiters {
		if w == t {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}
