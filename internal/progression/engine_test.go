package progression

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelbot/levelbot/internal/logger"
	"github.com/levelbot/levelbot/internal/models"
	"github.com/levelbot/levelbot/internal/ratelimit"
	"github.com/levelbot/levelbot/internal/storage"
	"github.com/levelbot/levelbot/internal/storage/memory"
)

func newTestEngine(t *testing.T, opts Options, limit int) (*Engine, *storage.Table[models.ProgressionRecord]) {
	t.Helper()
	log := logger.Discard()
	table := storage.NewTable[models.ProgressionRecord](storage.ProgressionTable, memory.NewMemoryTableStore(), log, nil)
	return NewEngine(table, ratelimit.NewLimiter(limit, time.Minute), opts, log, nil), table
}

func fixedRoll(v int64) func(int64) int64 {
	return func(int64) int64 { return v }
}

func TestFirstMessageCreatesRecord(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, DefaultOptions(), 60)
	now := time.Unix(1_700_000_000, 0)

	res, err := eng.HandleMessage(ctx, "42", now)
	require.NoError(t, err)
	require.True(t, res.Awarded)
	assert.GreaterOrEqual(t, res.Gain, int64(10))
	assert.LessOrEqual(t, res.Gain, int64(20))
	assert.Nil(t, res.LevelUp)

	rec, ok, err := eng.Record(ctx, "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.Gain, rec.XP)
	assert.Equal(t, int64(0), rec.Level)
	assert.Equal(t, int64(1), rec.TotalMessages)
	assert.Equal(t, now.Unix(), rec.LastMessageAt().Unix())
}

func TestGainBounds(t *testing.T) {
	opts := DefaultOptions()

	opts.Roll = fixedRoll(0)
	eng, _ := newTestEngine(t, opts, 60)
	assert.Equal(t, int64(10), eng.Gain())

	opts.Roll = fixedRoll(10)
	eng, _ = newTestEngine(t, opts, 60)
	assert.Equal(t, int64(20), eng.Gain())

	opts.BaseXP = 3
	opts.Roll = fixedRoll(0)
	eng, _ = newTestEngine(t, opts, 60)
	assert.Equal(t, int64(5), eng.Gain(), "gain is clamped to the minimum")
}

func TestLevelUpSignalledOnce(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.Roll = fixedRoll(10) // gain 20
	eng, table := newTestEngine(t, opts, 60)

	require.NoError(t, table.Update(ctx, func(rows map[string]*models.ProgressionRecord) (bool, error) {
		rows["7"] = &models.ProgressionRecord{XP: 7490, TotalMessages: 499}
		return true, nil
	}))

	now := time.Unix(1_700_000_000, 0)
	res, err := eng.HandleMessage(ctx, "7", now)
	require.NoError(t, err)
	require.NotNil(t, res.LevelUp)
	assert.Equal(t, int64(1), res.LevelUp.Level)
	assert.Equal(t, int64(7510), res.LevelUp.XP)
	assert.Equal(t, "7", res.LevelUp.UserID)
	assert.NotEmpty(t, res.LevelUp.EventID)

	res, err = eng.HandleMessage(ctx, "7", now.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, res.LevelUp)
	assert.Equal(t, int64(1), res.Record.Level)
	assert.Equal(t, int64(501), res.Record.TotalMessages)
}

func TestRateLimitedMessageLeavesRecord(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.Roll = fixedRoll(5)
	eng, _ := newTestEngine(t, opts, 1)
	now := time.Unix(1_700_000_000, 0)

	res, err := eng.HandleMessage(ctx, "9", now)
	require.NoError(t, err)
	require.True(t, res.Awarded)

	res, err = eng.HandleMessage(ctx, "9", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, res.Awarded)

	rec, _, err := eng.Record(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, int64(15), rec.XP)
	assert.Equal(t, int64(1), rec.TotalMessages)
}

func TestLevelProgressForUnknownUser(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultOptions(), 60)

	p, err := eng.LevelProgress(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, LevelProgress{XPNeeded: 7500}, p)
}

func TestLevelIsFloorAndMonotonic(t *testing.T) {
	prev := int64(0)
	for xp := int64(0); xp <= 30_000; xp += 7 {
		lvl := Level(xp, 7500)
		assert.Equal(t, xp/7500, lvl)
		assert.GreaterOrEqual(t, lvl, prev)
		prev = lvl
	}
}

func TestProgress(t *testing.T) {
	p := Progress(models.ProgressionRecord{XP: 7500 + 3750, TotalMessages: 12}, 7500)
	assert.Equal(t, int64(1), p.Level)
	assert.Equal(t, 50, p.Percent)
	assert.Equal(t, int64(3750), p.XPIntoLevel)
	assert.Equal(t, int64(7500), p.XPNeeded)
	assert.Equal(t, int64(12), p.Messages)

	// a stale stored level does not leak into the progress
	p = Progress(models.ProgressionRecord{XP: 7499, Level: 3}, 7500)
	assert.Equal(t, int64(0), p.Level)
	assert.Equal(t, 100, p.Percent)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "⬜⬜⬜⬜⬜⬜⬜⬜⬜⬜", ProgressBar(0, 10))
	assert.Equal(t, "🟦🟦🟦🟦⬜⬜⬜⬜⬜⬜", ProgressBar(47, 10))
	assert.Equal(t, "🟦🟦🟦🟦🟦🟦🟦🟦🟦🟦", ProgressBar(100, 10))
	assert.Equal(t, "🟦🟦🟦🟦🟦🟦🟦🟦🟦🟦", ProgressBar(150, 10))
	assert.Equal(t, "", ProgressBar(50, 0))
}
