package ratelimit

import (
	"sync"
	"time"
)

// Limiter caps XP-earning events per user inside a fixed window that
// restarts once the previous one is older than the window length. State is
// in memory only; a restart forgets every window.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*Window
}

// Window is the per-user counter.
type Window struct {
	Start time.Time
	Count int
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*Window),
	}
}

// Allow counts one event for userID at now and reports whether it is within
// the cap. Suppressed events still count toward the current window.
func (l *Limiter) Allow(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[userID]
	if !ok {
		w = &Window{Start: now}
		l.windows[userID] = w
	}
	if now.Sub(w.Start) > l.window {
		w.Count = 0
		w.Start = now
	}

	w.Count++
	return w.Count <= l.limit
}

// Snapshot returns a copy of the user's current window.
func (l *Limiter) Snapshot(userID string) (Window, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[userID]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// Cleanup drops windows idle for longer than maxIdle.
func (l *Limiter) Cleanup(now time.Time, maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for userID, w := range l.windows {
		if now.Sub(w.Start) > maxIdle {
			delete(l.windows, userID)
			removed++
		}
	}
	return removed
}
