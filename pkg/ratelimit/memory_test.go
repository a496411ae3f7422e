package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSet(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	s := NewMemoryStore(clock.Now)
	ctx := context.Background()

	n, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Set(ctx, "k", 5, 10*time.Second))
	n, _ = s.Get(ctx, "k")
	assert.Equal(t, int64(5), n)

	clock.Advance(10 * time.Second)
	n, _ = s.Get(ctx, "k")
	assert.Zero(t, n, "counter must expire at its TTL")
	assert.Zero(t, s.Len())
}

func TestMemoryStore_SetNonPositiveTTLDeletes(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore(nil)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", 1, time.Minute))
	require.NoError(t, s.Set(ctx, "k", 2, 0))
	n, _ := s.Get(ctx, "k")
	assert.Zero(t, n)
}

func TestMemoryStore_IncrementIfBelow(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	s := NewMemoryStore(clock.Now)
	ctx := context.Background()

	for want := int64(0); want < 2; want++ {
		count, ok, err := s.IncrementIfBelow(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, count)
	}

	count, ok, err := s.IncrementIfBelow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), count)

	clock.Advance(time.Minute)
	count, ok, _ = s.IncrementIfBelow(ctx, "k", 2, time.Minute)
	assert.True(t, ok)
	assert.Zero(t, count)
}

func TestMemoryStore_Sweep(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	s := NewMemoryStore(clock.Now)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", 1, time.Second))
	require.NoError(t, s.Set(ctx, "long", 1, time.Hour))
	clock.Advance(2 * time.Second)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_RunSweeperEvictsUntilCanceled(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	s := NewMemoryStore(clock.Now)
	ctx, cancel := context.WithCancel(context.Background())

	for _, k := range []string{"a", "b", "c"} {
		_, ok, err := s.IncrementIfBelow(ctx, k, 5, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}
	clock.Advance(2 * time.Second)

	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper did not return after cancel")
	}
}

func TestMemoryStore_RunSweeperNonPositiveInterval(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore(nil)
	done := make(chan struct{})
	go func() {
		s.RunSweeper(context.Background(), 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper should return for a zero interval")
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Set(ctx, "k", 1, time.Minute), context.Canceled)
	_, _, err = s.IncrementIfBelow(ctx, "k", 1, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
