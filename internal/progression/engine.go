package progression

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/levelbot/levelbot/internal/metrics"
	"github.com/levelbot/levelbot/internal/models"
	"github.com/levelbot/levelbot/internal/models/events"
	"github.com/levelbot/levelbot/internal/ratelimit"
	"github.com/levelbot/levelbot/internal/storage"
)

type Options struct {
	BaseXP     int64
	Jitter     int64
	MinXP      int64
	XPPerLevel int64
	// Roll returns a uniform value in [0, n). Defaults to math/rand/v2.
	Roll func(n int64) int64
}

// DefaultOptions matches the live bot: 15±5 XP per message, 7500 XP per level.
func DefaultOptions() Options {
	return Options{
		BaseXP:     15,
		Jitter:     5,
		MinXP:      5,
		XPPerLevel: 7500,
	}
}

// Result reports what a message did to its author's record.
type Result struct {
	Awarded bool
	Gain    int64
	Record  models.ProgressionRecord
	LevelUp *events.LevelUp
}

// Engine owns the progression table.
type Engine struct {
	table   *storage.Table[models.ProgressionRecord]
	limiter *ratelimit.Limiter
	opts    Options
	log     *logrus.Logger
	metrics *metrics.BotMetrics
}

func NewEngine(table *storage.Table[models.ProgressionRecord], limiter *ratelimit.Limiter, opts Options, log *logrus.Logger, m *metrics.BotMetrics) *Engine {
	if opts.Roll == nil {
		opts.Roll = rand.Int64N
	}
	return &Engine{
		table:   table,
		limiter: limiter,
		opts:    opts,
		log:     log,
		metrics: m,
	}
}

func (e *Engine) XPPerLevel() int64 {
	return e.opts.XPPerLevel
}

// Gain draws the XP for one message: BaseXP plus a uniform offset in
// [-Jitter, Jitter], never below MinXP.
func (e *Engine) Gain() int64 {
	gain := e.opts.BaseXP
	if e.opts.Jitter > 0 {
		gain += e.opts.Roll(2*e.opts.Jitter+1) - e.opts.Jitter
	}
	return max(gain, e.opts.MinXP)
}

// HandleMessage awards XP for a qualifying message. A rate-limited message
// is reported with Awarded=false and does not touch storage.
func (e *Engine) HandleMessage(ctx context.Context, userID string, now time.Time) (Result, error) {
	if !e.limiter.Allow(userID, now) {
		e.metrics.ObserveRateLimited()
		e.log.WithField("user_id", userID).Debug("message over rate limit, no xp")
		return Result{}, nil
	}

	gain := e.Gain()
	var res Result
	err := e.table.Update(ctx, func(rows map[string]*models.ProgressionRecord) (bool, error) {
		rec, ok := rows[userID]
		if !ok {
			rec = &models.ProgressionRecord{}
			rows[userID] = rec
		}

		oldLevel := Level(rec.XP, e.opts.XPPerLevel)
		rec.XP += gain
		rec.Level = Level(rec.XP, e.opts.XPPerLevel)
		rec.TotalMessages++
		rec.StampLastMessage(now)

		res = Result{Awarded: true, Gain: gain, Record: *rec}
		if rec.Level > oldLevel {
			res.LevelUp = &events.LevelUp{
				EventID:    uuid.NewString(),
				UserID:     userID,
				Level:      rec.Level,
				XP:         rec.XP,
				OccurredAt: now.UTC(),
			}
		}
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}

	e.metrics.ObserveXP(gain)
	if res.LevelUp != nil {
		e.metrics.ObserveLevelUp()
		e.log.WithFields(logrus.Fields{
			"user_id": userID,
			"level":   res.LevelUp.Level,
		}).Info("level up")
	}
	return res, nil
}

// Record returns the user's record; ok is false when they have none yet.
func (e *Engine) Record(ctx context.Context, userID string) (models.ProgressionRecord, bool, error) {
	rows, err := e.table.Load(ctx)
	if err != nil {
		return models.ProgressionRecord{}, false, err
	}
	rec, ok := rows[userID]
	if !ok {
		return models.ProgressionRecord{}, false, nil
	}
	return *rec, true, nil
}

// LevelProgress returns the progress summary for userID. Users without a
// record report level 0 with no XP.
func (e *Engine) LevelProgress(ctx context.Context, userID string) (LevelProgress, error) {
	rec, _, err := e.Record(ctx, userID)
	if err != nil {
		return LevelProgress{}, err
	}
	return Progress(rec, e.opts.XPPerLevel), nil
}

// Standings returns every stored record keyed by user id.
func (e *Engine) Standings(ctx context.Context) (map[string]models.ProgressionRecord, error) {
	rows, err := e.table.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.ProgressionRecord, len(rows))
	for id, rec := range rows {
		out[id] = *rec
	}
	return out, nil
}
