package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowCeiling(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	w := New(10, time.Minute)
	w.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		allowed, _ := w.Check("user-a")
		require.True(t, allowed, "call %d should pass", i+1)
	}
	allowed, wait := w.Check("user-a")
	require.False(t, allowed, "11th call inside the window must be rejected")
	require.Equal(t, time.Minute, wait)

	// Other users are unaffected.
	allowed, _ = w.Check("user-b")
	require.True(t, allowed)
}

func TestWindowResetStartsFresh(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	w := New(10, time.Minute)
	w.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		w.Check("user-a")
	}
	allowed, _ := w.Check("user-a")
	require.False(t, allowed)

	now = now.Add(time.Minute + time.Second)
	allowed, _ = w.Check("user-a")
	require.True(t, allowed, "call after reset must be allowed")

	remaining, _ := w.Status("user-a")
	require.Equal(t, 9, remaining, "counter must restart at 1 after reset")
}

func TestStatusDoesNotConsume(t *testing.T) {
	w := New(3, time.Minute)
	remaining, resetIn := w.Status("user-a")
	require.Equal(t, 3, remaining)
	require.Zero(t, resetIn)

	w.Check("user-a")
	remaining, resetIn = w.Status("user-a")
	require.Equal(t, 2, remaining)
	require.Greater(t, resetIn, time.Duration(0))

	// Status again: unchanged.
	remaining, _ = w.Status("user-a")
	require.Equal(t, 2, remaining)
}

func TestWindowConcurrentAccess(t *testing.T) {
	w := New(1000, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				w.Check("shared-user")
			}
		}()
	}
	wg.Wait()
	remaining, _ := w.Status("shared-user")
	require.Equal(t, 200, remaining, "800 checks against a 1000 ceiling")
}

func TestExpiredWindowsCollected(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	w := New(10, time.Minute)
	w.now = func() time.Time { return now }

	w.Check("stale-user")
	now = now.Add(2 * time.Minute)
	w.Check("fresh-user") // triggers gc of stale-user

	w.mu.Lock()
	_, ok := w.entries["stale-user"]
	w.mu.Unlock()
	require.False(t, ok, "expired window should be garbage collected")
}
