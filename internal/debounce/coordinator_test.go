package debounce

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goturn/internal/clock"
	"github.com/nextlevelbuilder/goturn/internal/conversation"
	"github.com/nextlevelbuilder/goturn/internal/kv"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type turn struct {
	id   string
	text string
	at   time.Time
}

type harness struct {
	clk    *clock.Fake
	buffer *conversation.Buffer
	turns  chan turn
	coord  *Coordinator
}

func newHarness(t *testing.T, opts Options, handler func(h *harness, id, text string)) *harness {
	t.Helper()
	clk := clock.NewFake(t0)
	h := &harness{
		clk:    clk,
		buffer: conversation.NewBuffer(kv.NewMemoryStore(clk), nil, 0, 0),
		turns:  make(chan turn, 16),
	}
	opts.Clock = clk
	h.coord = New(h.buffer, func(ctx context.Context, id, text string) {
		if handler != nil {
			handler(h, id, text)
		}
		h.turns <- turn{id: id, text: text, at: clk.Now()}
	}, opts)
	t.Cleanup(h.coord.Stop)
	return h
}

func (h *harness) push(id, text string) bool {
	h.buffer.Push(context.Background(), id, text)
	return h.coord.Arm(id)
}

// next drives the fake clock poll by poll until a turn is dispatched.
func (h *harness) next(t *testing.T) turn {
	t.Helper()
	for i := 0; i < 200; i++ {
		select {
		case tr := <-h.turns:
			return tr
		default:
		}
		if h.clk.WaitForTimers(1, 20*time.Millisecond) {
			h.clk.AdvanceNext()
		}
	}
	t.Fatal("no turn dispatched")
	return turn{}
}

func TestBurstCoalescesIntoOneTurn(t *testing.T) {
	h := newHarness(t, Options{}, nil)

	require.True(t, h.push("5511999990000", "leite"))
	h.clk.Advance(time.Second)
	assert.False(t, h.push("5511999990000", "pão"))
	h.clk.Advance(time.Second)
	assert.False(t, h.push("5511999990000", "2kg de arroz"))

	tr := h.next(t)
	assert.Equal(t, "5511999990000", tr.id)
	assert.Equal(t, "leite pão 2kg de arroz", tr.text)
	assert.GreaterOrEqual(t, tr.at.Sub(t0), 12500*time.Millisecond, "quiet period follows the last fragment")

	require.Eventually(t, func() bool { return !h.coord.Active("5511999990000") }, time.Second, time.Millisecond)
	assert.Equal(t, 0, h.buffer.Len(context.Background(), "5511999990000"))
}

func TestConcurrentArmStartsOneWatcher(t *testing.T) {
	h := newHarness(t, Options{}, nil)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		armed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if h.push("77", fmt.Sprintf("item%d", i)) {
				mu.Lock()
				armed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, armed)

	tr := h.next(t)
	assert.Len(t, strings.Fields(tr.text), 10)

	select {
	case extra := <-h.turns:
		t.Fatalf("unexpected second turn %q", extra.text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGrowthResetsStallCounter(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	require.True(t, h.push("1", "a"))

	for i := 0; i < 2; i++ {
		require.True(t, h.clk.WaitForTimers(1, time.Second))
		h.clk.AdvanceNext()
	}
	require.True(t, h.clk.WaitForTimers(1, time.Second))
	assert.False(t, h.push("1", "b"))

	tr := h.next(t)
	assert.Equal(t, "a b", tr.text)
	assert.Equal(t, 21*time.Second, tr.at.Sub(t0))
}

func TestEmptyBufferExitsSilently(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	require.True(t, h.coord.Arm("9"))

	for i := 0; i < 3; i++ {
		require.True(t, h.clk.WaitForTimers(1, time.Second))
		h.clk.AdvanceNext()
	}
	require.Eventually(t, func() bool { return !h.coord.Active("9") }, time.Second, time.Millisecond)
	select {
	case tr := <-h.turns:
		t.Fatalf("unexpected turn %q", tr.text)
	default:
	}
}

func TestBlankFragmentsAreDropped(t *testing.T) {
	assert.Equal(t, "oi tudo bem", Join([]string{" oi ", "", "   ", "tudo bem"}))
	assert.Equal(t, "", Join(nil))
}

func TestBoundedPoolQueuesExtraWatchers(t *testing.T) {
	h := newHarness(t, Options{MaxWatchers: 1}, nil)
	require.True(t, h.push("1", "first"))
	require.True(t, h.push("2", "second"))

	running, pending := h.coord.Stats()
	assert.Equal(t, 1, running)
	assert.Equal(t, 1, pending)
	assert.True(t, h.coord.Active("2"))
	assert.False(t, h.push("2", "again"), "queued conversation counts as armed")

	first := h.next(t)
	assert.Equal(t, "1", first.id)
	second := h.next(t)
	assert.Equal(t, "2", second.id)
	assert.Equal(t, "second again", second.text)
}

func TestPanicAbortsAndReleasesWatcher(t *testing.T) {
	var calls int
	h := newHarness(t, Options{}, func(h *harness, id, text string) {
		calls++
		if calls == 1 {
			h.buffer.Push(context.Background(), id, "late")
			panic("engine exploded")
		}
	})

	require.True(t, h.push("3", "pedido"))
	for i := 0; i < 3; i++ {
		require.True(t, h.clk.WaitForTimers(1, time.Second))
		h.clk.AdvanceNext()
	}
	require.Eventually(t, func() bool { return !h.coord.Active("3") }, time.Second, time.Millisecond)
	assert.Equal(t, 0, h.buffer.Len(context.Background(), "3"), "aborted watcher drains leftovers")

	require.True(t, h.push("3", "de novo"))
	tr := h.next(t)
	assert.Equal(t, "de novo", tr.text)
}

func TestLateFragmentRearmsAfterDispatch(t *testing.T) {
	var once sync.Once
	h := newHarness(t, Options{}, func(h *harness, id, text string) {
		once.Do(func() {
			assert.False(t, h.push(id, "mais uma coisa"), "watcher still armed during dispatch")
		})
	})

	require.True(t, h.push("4", "arroz"))
	assert.Equal(t, "arroz", h.next(t).text)
	assert.Equal(t, "mais uma coisa", h.next(t).text)
}

func TestStopAbandonsWatchers(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	require.True(t, h.push("5", "x"))
	require.True(t, h.clk.WaitForTimers(1, time.Second))

	h.coord.Stop()
	assert.False(t, h.coord.Arm("6"))
	assert.Equal(t, 1, h.buffer.Len(context.Background(), "5"))
	select {
	case tr := <-h.turns:
		t.Fatalf("unexpected turn %q", tr.text)
	default:
	}
}

func TestDispatchRunsImmediately(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.coord.Dispatch("+55 8", "urgente")
	select {
	case tr := <-h.turns:
		assert.Equal(t, "558", tr.id)
		assert.Equal(t, "urgente", tr.text)
	case <-time.After(time.Second):
		t.Fatal("immediate dispatch did not run")
	}
}

func TestDispatchQueuesBehindArmedWatcher(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan string, 4)
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	h := newHarness(t, Options{}, func(h *harness, id, text string) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()

		entered <- text
		if text == "pedido" {
			<-release
		}

		mu.Lock()
		inFlight--
		mu.Unlock()
	})

	require.True(t, h.push("1", "pedido"))
	waitEntered(t, h, entered, "pedido")

	h.coord.Dispatch("1", "overflow")
	select {
	case text := <-entered:
		t.Fatalf("turn %q started while another was in flight", text)
	case <-time.After(50 * time.Millisecond):
	}
	running, pending := h.coord.Stats()
	assert.Equal(t, 1, running, "immediate turn shares the conversation slot")
	assert.Equal(t, 0, pending)

	close(release)
	assert.Equal(t, "pedido", (<-h.turns).text)
	select {
	case tr := <-h.turns:
		assert.Equal(t, "overflow", tr.text)
	case <-time.After(time.Second):
		t.Fatal("queued immediate turn did not run")
	}

	require.Eventually(t, func() bool { return !h.coord.Active("1") }, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak)
}

func TestDispatchCountsAgainstPool(t *testing.T) {
	h := newHarness(t, Options{MaxWatchers: 1}, nil)
	require.True(t, h.push("1", "primeiro"))

	h.coord.Dispatch("2", "urgente")
	running, pending := h.coord.Stats()
	assert.Equal(t, 1, running)
	assert.Equal(t, 1, pending)
	assert.True(t, h.coord.Active("2"))

	assert.Equal(t, "primeiro", h.next(t).text)
	second := h.next(t)
	assert.Equal(t, "2", second.id)
	assert.Equal(t, "urgente", second.text)
}

func TestArmAfterImmediateTurnWatches(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan string, 4)
	h := newHarness(t, Options{}, func(h *harness, id, text string) {
		entered <- text
		if text == "urgente" {
			<-release
		}
	})

	h.coord.Dispatch("8", "urgente")
	waitEntered(t, h, entered, "urgente")
	assert.True(t, h.push("8", "mais"), "slot running only immediate turns accepts a watcher")
	assert.False(t, h.push("8", "coisa"))

	close(release)
	assert.Equal(t, "urgente", (<-h.turns).text)
	assert.Equal(t, "mais coisa", h.next(t).text)
}

// waitEntered steps the fake clock until the handler reports want.
func waitEntered(t *testing.T, h *harness, entered <-chan string, want string) {
	t.Helper()
	for i := 0; i < 200; i++ {
		select {
		case got := <-entered:
			require.Equal(t, want, got)
			return
		default:
		}
		if h.clk.WaitForTimers(1, 20*time.Millisecond) {
			h.clk.AdvanceNext()
		}
	}
	t.Fatal("handler not entered")
}
