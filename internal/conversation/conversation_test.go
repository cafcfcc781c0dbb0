package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goturn/internal/clock"
	"github.com/nextlevelbuilder/goturn/internal/kv"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *kv.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := kv.NewRedisStore(kv.RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { s.Close() })
	return mr, s
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"5511999990000":                "5511999990000",
		"+55 (11) 99999-0000":          "5511999990000",
		"5511999990000@s.whatsapp.net": "5511999990000",
		"abc":                          "",
		"":                             "",
	}
	for in, want := range cases {
		got := Normalize(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, got, Normalize(got), "idempotent for %q", in)
	}
	assert.Equal(t, "msgbuf:5511999990000", BufferKey("+55 11 99999-0000"))
	assert.Equal(t, "cooldown:1", CooldownKey("1"))
	assert.Equal(t, "session_order:1", SessionKey("1"))
	assert.Equal(t, "edit_window:1", EditWindowKey("1"))
}

func TestBufferPushAppliesTTLOnce(t *testing.T) {
	ctx := context.Background()
	mr, s := newRedis(t)
	b := NewBuffer(s, nil, 0, 0)

	require.True(t, b.Push(ctx, "+55 11 5555", "leite"))
	assert.Equal(t, 300*time.Second, mr.TTL("msgbuf:55115555"))

	mr.FastForward(100 * time.Second)
	require.True(t, b.Push(ctx, "55115555", "pão"))
	assert.Equal(t, 200*time.Second, mr.TTL("msgbuf:55115555"))
	assert.Equal(t, 2, b.Len(ctx, "55115555"))

	assert.Equal(t, []string{"leite", "pão"}, b.Drain(ctx, "55115555"))
	assert.Equal(t, 0, b.Len(ctx, "55115555"))
	assert.Empty(t, b.Drain(ctx, "55115555"))
}

func TestBufferFallsBackWhenStoreDown(t *testing.T) {
	ctx := context.Background()
	mr, s := newRedis(t)
	b := NewBuffer(s, kv.NewMemoryStore(nil), 0, 2)

	require.True(t, b.Push(ctx, "1", "shared"))

	mr.SetError("ERR connection reset")
	assert.True(t, b.Push(ctx, "1", "local-1"))
	assert.True(t, b.Push(ctx, "1", "local-2"))
	assert.False(t, b.Push(ctx, "1", "overflow"), "full fallback signals immediate processing")
	assert.Equal(t, 2, b.Len(ctx, "1"))

	mr.SetError("")
	assert.Equal(t, 3, b.Len(ctx, "1"))
	assert.Equal(t, []string{"shared", "local-1", "local-2"}, b.Drain(ctx, "1"))
	assert.Equal(t, 0, b.Len(ctx, "1"))
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	mr, s := newRedis(t)
	c := NewCooldown(s, 0)

	active, remaining := c.IsActive(ctx, "5511")
	assert.False(t, active)
	assert.Equal(t, -1, remaining)

	require.NoError(t, c.Activate(ctx, "55-11", 10*time.Minute))
	active, remaining = c.IsActive(ctx, "5511")
	assert.True(t, active)
	assert.Equal(t, 600, remaining)

	mr.FastForward(10*time.Minute + time.Second)
	active, _ = c.IsActive(ctx, "5511")
	assert.False(t, active)

	require.NoError(t, c.Activate(ctx, "5511", 0))
	assert.Equal(t, 60*time.Second, mr.TTL("cooldown:5511"))

	mr.SetError("ERR down")
	active, remaining = c.IsActive(ctx, "5511")
	assert.False(t, active, "unreachable store reads as no cooldown")
	assert.Equal(t, -1, remaining)
	assert.ErrorIs(t, c.Activate(ctx, "5511", 0), kv.ErrUnavailable)
}

func TestSessionWindowSliding(t *testing.T) {
	ctx := context.Background()
	mr, s := newRedis(t)
	w := NewSessionWindow(s, 0)

	assert.False(t, w.CheckAndRefresh(ctx, "42"), "first turn opens a new session")
	mr.FastForward(30 * time.Minute)
	assert.True(t, w.CheckAndRefresh(ctx, "42"))
	mr.FastForward(30 * time.Minute)
	assert.True(t, w.CheckAndRefresh(ctx, "42"), "refresh slides the window")
	mr.FastForward(41 * time.Minute)
	assert.False(t, w.Active(ctx, "42"))
	assert.False(t, w.CheckAndRefresh(ctx, "42"))
	assert.True(t, w.Active(ctx, "42"))

	mr.SetError("ERR down")
	assert.True(t, w.CheckAndRefresh(ctx, "99"), "unreachable store reads as active")
	assert.True(t, w.Active(ctx, "99"))
}

func TestEditWindow(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC))
	w := NewEditWindow(kv.NewMemoryStore(clk), 0)

	assert.False(t, w.IsOpen(ctx, "7"))
	require.NoError(t, w.Open(ctx, "7", 0))
	clk.Advance(9 * time.Minute)
	assert.True(t, w.IsOpen(ctx, "7"))
	clk.Advance(time.Minute + time.Second)
	assert.False(t, w.IsOpen(ctx, "7"))
}

func TestEditWindowFailsClosed(t *testing.T) {
	ctx := context.Background()
	mr, s := newRedis(t)
	w := NewEditWindow(s, 0)
	require.NoError(t, w.Open(ctx, "7", 0))

	mr.SetError("ERR down")
	assert.False(t, w.IsOpen(ctx, "7"))
}

func TestInspectDoesNotRefresh(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	s := kv.NewMemoryStore(clk)
	b := NewBuffer(s, nil, 0, 0)
	sess := NewSessionWindow(s, 0)
	edit := NewEditWindow(s, 0)
	cool := NewCooldown(s, 0)

	st := Inspect(ctx, "+55 11 5555", b, sess, edit, cool)
	assert.Equal(t, State{ConversationID: "55115555", CooldownRemaining: -1}, st)
	assert.False(t, sess.Active(ctx, "55115555"))

	require.True(t, b.Push(ctx, "55115555", "leite"))
	sess.CheckAndRefresh(ctx, "55115555")
	require.NoError(t, cool.Activate(ctx, "55115555", 30*time.Second))

	st = Inspect(ctx, "55115555", b, sess, edit, cool)
	assert.Equal(t, 1, st.BufferedFragments)
	assert.True(t, st.SessionActive)
	assert.False(t, st.EditWindowOpen)
	assert.True(t, st.CooldownActive)
	assert.Equal(t, 30, st.CooldownRemaining)
}
