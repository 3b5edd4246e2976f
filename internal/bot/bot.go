package bot

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/levelbot/levelbot/internal/cooldown"
	interfaces "github.com/levelbot/levelbot/internal/interfaces"
	"github.com/levelbot/levelbot/internal/leaderboard"
	"github.com/levelbot/levelbot/internal/ledger"
	"github.com/levelbot/levelbot/internal/models"
	"github.com/levelbot/levelbot/internal/paginator"
	"github.com/levelbot/levelbot/internal/progression"
	"github.com/levelbot/levelbot/internal/voice"
)

// Directory resolves identities and learns them from inbound events.
type Directory interface {
	interfaces.IdentityResolver
	Remember(models.Identity)
}

type Options struct {
	CommandPrefix  string
	ChannelID      string
	LevelUpTopic   string
	BegCooldown    time.Duration
	SessionTimeout time.Duration
}

type Deps struct {
	Progression *progression.Engine
	Voice       *voice.Tracker
	Ledger      *ledger.Ledger
	Boards      *leaderboard.Builder
	Directory   Directory
	Publisher   interfaces.EventPublisher
}

// Bot dispatches chat events and commands to the engines.
type Bot struct {
	opts        Options
	progression *progression.Engine
	voice       *voice.Tracker
	ledger      *ledger.Ledger
	boards      *leaderboard.Builder
	directory   Directory
	publisher   interfaces.EventPublisher
	pages       *paginator.Manager
	begs        *cooldown.Tracker
	now         func() time.Time
	log         *logrus.Logger
}

func New(deps Deps, opts Options, log *logrus.Logger) *Bot {
	if opts.BegCooldown <= 0 {
		opts.BegCooldown = 24 * time.Hour
	}
	b := &Bot{
		opts:        opts,
		progression: deps.Progression,
		voice:       deps.Voice,
		ledger:      deps.Ledger,
		boards:      deps.Boards,
		directory:   deps.Directory,
		publisher:   deps.Publisher,
		begs:        cooldown.NewTracker("beg", opts.BegCooldown),
		now:         time.Now,
		log:         log,
	}
	b.pages = paginator.NewManager(b.page, opts.SessionTimeout, log)
	b.pages.OnExpire = func(s paginator.Session) {
		b.log.WithFields(logrus.Fields{
			"session_id": s.ID,
			"user_id":    s.RequesterID,
			"kind":       s.Kind,
		}).Debug("leaderboard controls disabled")
	}
	return b
}

// SetNow overrides the time source. It is intended for tests.
func (b *Bot) SetNow(now func() time.Time) {
	b.now = now
	b.pages.SetNow(now)
}

// Pages exposes the session manager so its sweeper can be run.
func (b *Bot) Pages() *paginator.Manager {
	return b.pages
}

// SweepCooldowns drops command cooldowns that have expired by now.
func (b *Bot) SweepCooldowns(now time.Time) int {
	return b.begs.Cleanup(now)
}

// HandleMessage awards XP for a qualifying message: not from a bot and not
// a command. XP counts in every channel.
func (b *Bot) HandleMessage(ctx context.Context, ev models.MessageEvent) (progression.Result, error) {
	if ev.IsBot || ev.AuthorID == "" {
		return progression.Result{}, nil
	}
	if b.opts.CommandPrefix != "" && strings.HasPrefix(ev.Text, b.opts.CommandPrefix) {
		return progression.Result{}, nil
	}

	if b.directory != nil && ev.AuthorName != "" {
		b.directory.Remember(models.Identity{
			UserID:    ev.AuthorID,
			Name:      ev.AuthorName,
			AvatarURL: ev.AvatarURL,
		})
	}

	res, err := b.progression.HandleMessage(ctx, ev.AuthorID, b.now())
	if err != nil {
		b.log.WithError(err).WithField("user_id", ev.AuthorID).Error("failed to award xp")
		return progression.Result{}, err
	}

	if res.LevelUp != nil {
		res.LevelUp.ChannelID = ev.ChannelID
		b.announce(ctx, res)
	}
	return res, nil
}

// announce publishes the level-up. Delivery failures are logged only; the
// XP is already persisted.
func (b *Bot) announce(ctx context.Context, res progression.Result) {
	if b.publisher == nil || b.opts.LevelUpTopic == "" {
		return
	}
	ev := res.LevelUp
	if err := b.publisher.Publish(ctx, b.opts.LevelUpTopic, ev.UserID, ev); err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{
			"user_id":  ev.UserID,
			"event_id": ev.EventID,
		}).Warn("failed to publish level up")
	}
}

func (b *Bot) HandleVoiceState(ctx context.Context, ev models.VoiceStateEvent) (voice.Transition, error) {
	if ev.UserID == "" {
		return voice.Ignored, nil
	}
	return b.voice.HandleVoiceState(ctx, ev)
}

// HandleVoiceSnapshot picks up users already sitting in voice channels, for
// example after the gateway reconnects.
func (b *Bot) HandleVoiceSnapshot(ctx context.Context, present []voice.Presence) error {
	return b.voice.Reconcile(ctx, present)
}

// Shutdown flushes running voice sessions so no connected time is lost.
func (b *Bot) Shutdown(ctx context.Context) error {
	return b.voice.FlushAll(ctx)
}

func (b *Bot) page(ctx context.Context, kind leaderboard.Kind, page int) (leaderboard.Page, error) {
	var entries []leaderboard.Entry
	switch kind {
	case leaderboard.Voice:
		if err := b.voice.FlushAll(ctx); err != nil {
			return leaderboard.Page{}, err
		}
		totals, err := b.voice.Standings(ctx)
		if err != nil {
			return leaderboard.Page{}, err
		}
		entries = leaderboard.FromVoice(totals)
	default:
		rows, err := b.progression.Standings(ctx)
		if err != nil {
			return leaderboard.Page{}, err
		}
		entries = leaderboard.FromProgression(rows, b.progression.XPPerLevel())
	}
	return b.boards.Build(ctx, kind, entries, page), nil
}
