package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/levelbot/levelbot/internal/metrics"
	"github.com/levelbot/levelbot/internal/models"
	"github.com/levelbot/levelbot/internal/storage"
)

// Transition is what a voice-state event did to the user's session.
type Transition int

const (
	Ignored   Transition = iota // no session before or after
	Started                     // Disconnected -> Connected
	Continued                   // Connected -> Connected, session untouched
	Ended                       // Connected -> Disconnected, elapsed time flushed
)

func (t Transition) String() string {
	switch t {
	case Started:
		return "started"
	case Continued:
		return "continued"
	case Ended:
		return "ended"
	default:
		return "ignored"
	}
}

// Presence is a user currently sitting in a voice channel.
type Presence struct {
	UserID  string              `json:"user_id"`
	Channel models.VoiceChannel `json:"channel"`
}

// Tracker follows voice sessions and flushes connected time into the voice
// table. Every non-AFK connected second counts, muted or not.
type Tracker struct {
	mu       sync.Mutex
	table    *storage.Table[models.VoiceRecord]
	sessions map[string]time.Time
	now      func() time.Time
	log      *logrus.Logger
	metrics  *metrics.BotMetrics
}

func NewTracker(table *storage.Table[models.VoiceRecord], log *logrus.Logger, m *metrics.BotMetrics) *Tracker {
	return &Tracker{
		table:    table,
		sessions: make(map[string]time.Time),
		now:      time.Now,
		log:      log,
		metrics:  m,
	}
}

// SetNow overrides the time source. It is intended for tests.
func (t *Tracker) SetNow(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

func tracked(ch *models.VoiceChannel) bool {
	return ch != nil && !ch.AFK
}

// HandleVoiceState applies one voice-state transition. A user is tracked
// while their current channel exists and is not the AFK channel; moving
// between two tracked channels keeps the session running.
func (t *Tracker) HandleVoiceState(ctx context.Context, ev models.VoiceStateEvent) (Transition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	start, active := t.sessions[ev.UserID]

	switch {
	case tracked(ev.After) && !active:
		t.sessions[ev.UserID] = now
		t.log.WithField("user_id", ev.UserID).Debug("voice session started")
		return Started, nil
	case tracked(ev.After) && active:
		return Continued, nil
	case !tracked(ev.After) && active:
		delete(t.sessions, ev.UserID)
		elapsed := now.Sub(start)
		t.log.WithFields(logrus.Fields{
			"user_id": ev.UserID,
			"seconds": elapsed.Seconds(),
			"afk":     ev.After != nil,
		}).Debug("voice session ended")
		if err := t.flush(ctx, ev.UserID, elapsed); err != nil {
			return Ended, err
		}
		return Ended, nil
	default:
		return Ignored, nil
	}
}

// FlushIfActive moves the elapsed time of an active session into the
// persisted total and restarts the session clock without ending it.
func (t *Tracker) FlushIfActive(ctx context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushActive(ctx, userID)
}

func (t *Tracker) flushActive(ctx context.Context, userID string) error {
	start, ok := t.sessions[userID]
	if !ok {
		return nil
	}
	now := t.now()
	if err := t.flush(ctx, userID, now.Sub(start)); err != nil {
		return err
	}
	t.sessions[userID] = now
	return nil
}

// FlushAll flushes every active session, e.g. before shutdown or before a
// voice leaderboard is rendered.
func (t *Tracker) FlushAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for userID := range t.sessions {
		if err := t.flushActive(ctx, userID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reconcile starts sessions for users found in a tracked channel that the
// tracker missed (for example after a restart), then flushes all sessions.
func (t *Tracker) Reconcile(ctx context.Context, present []Presence) error {
	t.mu.Lock()
	now := t.now()
	started := make([]string, 0)
	for _, p := range present {
		if p.Channel.AFK {
			continue
		}
		if _, ok := t.sessions[p.UserID]; !ok {
			t.sessions[p.UserID] = now
			started = append(started, p.UserID)
		}
	}
	t.mu.Unlock()

	if len(started) > 0 {
		if err := t.ensureRecords(ctx, started); err != nil {
			return err
		}
		t.log.WithField("count", len(started)).Info("picked up untracked voice sessions")
	}
	return t.FlushAll(ctx)
}

// Active reports whether userID has a running session.
func (t *Tracker) Active(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[userID]
	return ok
}

// Total flushes the user's active session, creates their record if needed
// and returns the accumulated seconds.
func (t *Tracker) Total(ctx context.Context, userID string) (float64, error) {
	if err := t.FlushIfActive(ctx, userID); err != nil {
		return 0, err
	}

	var total float64
	err := t.table.Update(ctx, func(rows map[string]*models.VoiceRecord) (bool, error) {
		rec, ok := rows[userID]
		if !ok {
			rows[userID] = &models.VoiceRecord{}
			return true, nil
		}
		total = rec.Seconds()
		return false, nil
	})
	return total, err
}

// Standings returns accumulated seconds for every stored user.
func (t *Tracker) Standings(ctx context.Context) (map[string]float64, error) {
	rows, err := t.table.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for id, rec := range rows {
		out[id] = rec.Seconds()
	}
	return out, nil
}

func (t *Tracker) ensureRecords(ctx context.Context, userIDs []string) error {
	return t.table.Update(ctx, func(rows map[string]*models.VoiceRecord) (bool, error) {
		changed := false
		for _, id := range userIDs {
			if _, ok := rows[id]; !ok {
				rows[id] = &models.VoiceRecord{}
				changed = true
			}
		}
		return changed, nil
	})
}

func (t *Tracker) flush(ctx context.Context, userID string, elapsed time.Duration) error {
	if elapsed < 0 {
		elapsed = 0
	}
	add := decimal.New(elapsed.Nanoseconds(), -9)
	err := t.table.Update(ctx, func(rows map[string]*models.VoiceRecord) (bool, error) {
		rec, ok := rows[userID]
		if !ok {
			rec = &models.VoiceRecord{}
			rows[userID] = rec
		}
		rec.VoiceTime = rec.VoiceTime.Add(add)
		return true, nil
	})
	if err != nil {
		t.log.WithError(err).WithField("user_id", userID).Warn("failed to persist voice time")
		return fmt.Errorf("flush voice time for %s: %w", userID, err)
	}
	t.metrics.ObserveVoiceSeconds(elapsed.Seconds())
	return nil
}

// FormatDuration renders seconds as "<h>h <m>m".
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%dh %dm", total/3600, (total%3600)/60)
}
