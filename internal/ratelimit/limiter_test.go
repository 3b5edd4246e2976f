package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterCapsWindow(t *testing.T) {
	l := NewLimiter(60, time.Minute)
	start := time.Unix(1_000, 0)

	for i := 0; i < 60; i++ {
		require.True(t, l.Allow("u1", start.Add(time.Duration(i)*500*time.Millisecond)), "event %d", i+1)
	}
	require.False(t, l.Allow("u1", start.Add(45*time.Second)))

	w, ok := l.Snapshot("u1")
	require.True(t, ok)
	require.Equal(t, 61, w.Count)
	require.Equal(t, start, w.Start)
}

func TestLimiterResetsAfterWindow(t *testing.T) {
	l := NewLimiter(60, time.Minute)
	start := time.Unix(1_000, 0)

	for i := 0; i < 61; i++ {
		l.Allow("u1", start)
	}
	// exactly 60s is still inside the window
	require.False(t, l.Allow("u1", start.Add(60*time.Second)))

	require.True(t, l.Allow("u1", start.Add(61*time.Second)))
	w, _ := l.Snapshot("u1")
	require.Equal(t, 1, w.Count)
	require.Equal(t, start.Add(61*time.Second), w.Start)
}

func TestLimiterIsPerUser(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	now := time.Unix(5_000, 0)

	require.True(t, l.Allow("a", now))
	require.False(t, l.Allow("a", now))
	require.True(t, l.Allow("b", now))
}

func TestLimiterCleanup(t *testing.T) {
	l := NewLimiter(60, time.Minute)
	now := time.Unix(5_000, 0)

	l.Allow("old", now.Add(-10*time.Minute))
	l.Allow("fresh", now)

	require.Equal(t, 1, l.Cleanup(now, 5*time.Minute))
	_, ok := l.Snapshot("old")
	require.False(t, ok)
	_, ok = l.Snapshot("fresh")
	require.True(t, ok)
}
