package cooldown

import (
	"fmt"
	"sync"
	"time"
)

// RemainingTime is a cooldown split for display.
type RemainingTime struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

func (r RemainingTime) String() string {
	return fmt.Sprintf("%dh %dm %ds", r.Hours, r.Minutes, r.Seconds)
}

// Split breaks d into whole hours, minutes and seconds.
func Split(d time.Duration) RemainingTime {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return RemainingTime{
		Hours:   total / 3600,
		Minutes: (total % 3600) / 60,
		Seconds: total % 60,
	}
}

// Error is returned when a command is used again before its cooldown expires.
type Error struct {
	Command string
	Retry   time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s is on cooldown for %s", e.Command, e.Remaining())
}

// Remaining returns the time left before the command can run again.
func (e *Error) Remaining() RemainingTime {
	return Split(e.Retry)
}

// Tracker allows one use per user per period, like a per-user command bucket.
type Tracker struct {
	mu      sync.Mutex
	command string
	period  time.Duration
	used    map[string]time.Time
}

func NewTracker(command string, period time.Duration) *Tracker {
	return &Tracker{
		command: command,
		period:  period,
		used:    make(map[string]time.Time),
	}
}

// Acquire records a use at now, or returns *Error with the remaining time
// when the previous use is still within the period.
func (t *Tracker) Acquire(userID string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.used[userID]; ok {
		if elapsed := now.Sub(last); elapsed < t.period {
			return &Error{Command: t.command, Retry: t.period - elapsed}
		}
	}
	t.used[userID] = now
	return nil
}

// Reset forgets the user's last use.
func (t *Tracker) Reset(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.used, userID)
}

// Cleanup forgets uses whose period has run out by now and returns how many
// were dropped.
func (t *Tracker) Cleanup(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, last := range t.used {
		if now.Sub(last) >= t.period {
			delete(t.used, id)
			n++
		}
	}
	return n
}

// Len returns the number of users currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.used)
}
