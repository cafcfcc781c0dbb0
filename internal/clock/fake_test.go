package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	clk := NewFake(epoch)
	a := clk.NewTimer(2 * time.Second)
	b := clk.NewTimer(time.Second)

	clk.Advance(1500 * time.Millisecond)
	select {
	case at := <-b.C():
		assert.Equal(t, epoch.Add(time.Second), at)
	default:
		t.Fatal("1s timer did not fire")
	}
	select {
	case <-a.C():
		t.Fatal("2s timer fired early")
	default:
	}
	assert.Equal(t, 1, clk.Pending())
	assert.Equal(t, epoch.Add(1500*time.Millisecond), clk.Now())
}

func TestFakeAdvanceNext(t *testing.T) {
	clk := NewFake(epoch)
	_, ok := clk.AdvanceNext()
	assert.False(t, ok)

	tm := clk.NewTimer(3500 * time.Millisecond)
	moved, ok := clk.AdvanceNext()
	require.True(t, ok)
	assert.Equal(t, 3500*time.Millisecond, moved)
	<-tm.C()
	assert.Equal(t, 0, clk.Pending())
}

func TestFakeStop(t *testing.T) {
	clk := NewFake(epoch)
	tm := clk.NewTimer(time.Second)
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	assert.Equal(t, 0, clk.Pending())
}

func TestSleepHonorsContext(t *testing.T) {
	clk := NewFake(epoch)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- Sleep(ctx, clk, time.Minute) }()
	require.True(t, clk.WaitForTimers(1, time.Second))
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, 0, clk.Pending())
}

func TestSleepReturnsAfterAdvance(t *testing.T) {
	clk := NewFake(epoch)
	errc := make(chan error, 1)
	go func() { errc <- Sleep(context.Background(), clk, 2*time.Second) }()
	require.True(t, clk.WaitForTimers(1, time.Second))
	clk.Advance(2 * time.Second)
	assert.NoError(t, <-errc)
}
