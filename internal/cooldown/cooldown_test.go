package cooldown

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRejectsSecondUse(t *testing.T) {
	tr := NewTracker("beg", 24*time.Hour)
	now := time.Unix(10_000, 0)

	require.NoError(t, tr.Acquire("u1", now))

	err := tr.Acquire("u1", now.Add(90*time.Minute+15*time.Second))
	var cd *Error
	require.True(t, errors.As(err, &cd))
	assert.Equal(t, RemainingTime{Hours: 22, Minutes: 29, Seconds: 45}, cd.Remaining())
	assert.Equal(t, "beg is on cooldown for 22h 29m 45s", cd.Error())

	require.NoError(t, tr.Acquire("u2", now), "other users are unaffected")
	require.NoError(t, tr.Acquire("u1", now.Add(24*time.Hour)))
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker("beg", time.Hour)
	now := time.Unix(10_000, 0)

	require.NoError(t, tr.Acquire("u1", now))
	tr.Reset("u1")
	require.NoError(t, tr.Acquire("u1", now))
}

func TestTrackerCleanupDropsExpiredUses(t *testing.T) {
	tr := NewTracker("beg", time.Hour)
	now := time.Unix(10_000, 0)

	require.NoError(t, tr.Acquire("old", now))
	require.NoError(t, tr.Acquire("fresh", now.Add(30*time.Minute)))

	assert.Equal(t, 1, tr.Cleanup(now.Add(time.Hour)))
	assert.Equal(t, 1, tr.Len())
	require.Error(t, tr.Acquire("fresh", now.Add(time.Hour)), "live cooldowns survive a sweep")
	require.NoError(t, tr.Acquire("old", now.Add(time.Hour)))
}

func TestSplit(t *testing.T) {
	assert.Equal(t, RemainingTime{}, Split(-time.Second))
	assert.Equal(t, RemainingTime{Hours: 1, Minutes: 1, Seconds: 1}, Split(time.Hour+time.Minute+time.Second+400*time.Millisecond))
}
