package bot

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/levelbot/levelbot/internal/leaderboard"
	"github.com/levelbot/levelbot/internal/ledger"
	"github.com/levelbot/levelbot/internal/models"
	"github.com/levelbot/levelbot/internal/paginator"
	"github.com/levelbot/levelbot/internal/progression"
	"github.com/levelbot/levelbot/internal/voice"
)

const progressCells = 10

// Invocation identifies who ran a command and where.
type Invocation struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

type Direction string

const (
	Prev Direction = "prev"
	Next Direction = "next"
)

func (d Direction) delta() (int, error) {
	switch d {
	case Prev:
		return -1, nil
	case Next:
		return 1, nil
	}
	return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, d)
}

type BalanceView struct {
	UserID string `json:"user_id"`
	Wallet int64  `json:"wallet"`
	Bank   int64  `json:"bank"`
	Total  int64  `json:"total"`
}

func balanceView(userID string, a models.LedgerAccount) BalanceView {
	return BalanceView{UserID: userID, Wallet: a.Wallet, Bank: a.Bank, Total: a.Total()}
}

type LevelView struct {
	Identity     models.Identity           `json:"identity"`
	Progress     progression.LevelProgress `json:"progress"`
	Bar          string                    `json:"bar"`
	VoiceSeconds float64                   `json:"voice_seconds"`
	VoiceTime    string                    `json:"voice_time"`
}

type LeaderboardView struct {
	Session  paginator.Session  `json:"session"`
	Controls paginator.Controls `json:"controls"`
	Page     leaderboard.Page   `json:"page"`
}

func (b *Bot) gate(inv Invocation) error {
	if b.opts.ChannelID != "" && inv.ChannelID != b.opts.ChannelID {
		return AsNotice(ErrWrongChannel)
	}
	if inv.UserID == "" {
		return AsNotice(fmt.Errorf("%w: missing user", ErrInvalidInput))
	}
	return nil
}

func (b *Bot) fail(command string, inv Invocation, err error) error {
	n := AsNotice(err)
	entry := b.log.WithFields(logrus.Fields{
		"command": command,
		"user_id": inv.UserID,
		"kind":    n.Kind,
	})
	if n.Kind == NoticeFailure {
		entry.WithError(err).Error("command failed")
	} else {
		entry.Debug("command rejected")
	}
	return n
}

// Balance opens the caller's account if needed and reports it.
func (b *Bot) Balance(ctx context.Context, inv Invocation) (BalanceView, error) {
	if err := b.gate(inv); err != nil {
		return BalanceView{}, err
	}
	acct, err := b.ledger.GetBalance(ctx, inv.UserID)
	if err != nil {
		return BalanceView{}, b.fail("balance", inv, err)
	}
	return balanceView(inv.UserID, acct), nil
}

// Beg grants a random wallet amount once per cooldown period. The cooldown
// is taken before earning and handed back if the write fails.
func (b *Bot) Beg(ctx context.Context, inv Invocation) (ledger.EarnResult, error) {
	if err := b.gate(inv); err != nil {
		return ledger.EarnResult{}, err
	}
	if err := b.begs.Acquire(inv.UserID, b.now()); err != nil {
		return ledger.EarnResult{}, b.fail("beg", inv, err)
	}
	res, err := b.ledger.Earn(ctx, inv.UserID)
	if err != nil {
		b.begs.Reset(inv.UserID)
		return ledger.EarnResult{}, b.fail("beg", inv, err)
	}
	return res, nil
}

func (b *Bot) Deposit(ctx context.Context, inv Invocation, amount int64) (BalanceView, error) {
	if err := b.gate(inv); err != nil {
		return BalanceView{}, err
	}
	acct, err := b.ledger.Deposit(ctx, inv.UserID, amount)
	if err != nil {
		return BalanceView{}, b.fail("deposit", inv, err)
	}
	return balanceView(inv.UserID, acct), nil
}

func (b *Bot) Withdraw(ctx context.Context, inv Invocation, amount int64) (BalanceView, error) {
	if err := b.gate(inv); err != nil {
		return BalanceView{}, err
	}
	acct, err := b.ledger.Withdraw(ctx, inv.UserID, amount)
	if err != nil {
		return BalanceView{}, b.fail("withdraw", inv, err)
	}
	return balanceView(inv.UserID, acct), nil
}

// Give moves coins from the caller's wallet to the target's wallet.
func (b *Bot) Give(ctx context.Context, inv Invocation, targetID string, amount int64) (BalanceView, error) {
	if err := b.gate(inv); err != nil {
		return BalanceView{}, err
	}
	if targetID == "" {
		return BalanceView{}, b.fail("give", inv, fmt.Errorf("%w: missing recipient", ErrInvalidInput))
	}
	acct, err := b.ledger.Transfer(ctx, inv.UserID, targetID, amount)
	if err != nil {
		return BalanceView{}, b.fail("give", inv, err)
	}
	return balanceView(inv.UserID, acct), nil
}

// Level reports the target's progression and voice time. An empty targetID
// means the caller. Running voice sessions are flushed first.
func (b *Bot) Level(ctx context.Context, inv Invocation, targetID string) (LevelView, error) {
	if err := b.gate(inv); err != nil {
		return LevelView{}, err
	}
	if targetID == "" {
		targetID = inv.UserID
	}

	prog, err := b.progression.LevelProgress(ctx, targetID)
	if err != nil {
		return LevelView{}, b.fail("level", inv, err)
	}
	secs, err := b.voice.Total(ctx, targetID)
	if err != nil {
		return LevelView{}, b.fail("level", inv, err)
	}

	return LevelView{
		Identity:     b.identity(ctx, targetID),
		Progress:     prog,
		Bar:          progression.ProgressBar(prog.Percent, progressCells),
		VoiceSeconds: secs,
		VoiceTime:    voice.FormatDuration(secs),
	}, nil
}

// Leaderboard opens a paginated leaderboard view for the caller.
func (b *Bot) Leaderboard(ctx context.Context, inv Invocation, kind leaderboard.Kind, page int) (LeaderboardView, error) {
	if err := b.gate(inv); err != nil {
		return LeaderboardView{}, err
	}
	s, p, err := b.pages.Open(ctx, inv.UserID, kind, page)
	if err != nil {
		return LeaderboardView{}, b.fail("leaderboard", inv, err)
	}
	return LeaderboardView{Session: s, Controls: s.Controls(), Page: p}, nil
}

// Navigate moves an open leaderboard one page in dir.
func (b *Bot) Navigate(ctx context.Context, inv Invocation, sessionID string, dir Direction) (LeaderboardView, error) {
	if err := b.gate(inv); err != nil {
		return LeaderboardView{}, err
	}
	delta, err := dir.delta()
	if err != nil {
		return LeaderboardView{}, b.fail("navigate", inv, err)
	}
	s, p, err := b.pages.Navigate(ctx, sessionID, inv.UserID, delta)
	if err != nil {
		return LeaderboardView{}, b.fail("navigate", inv, err)
	}
	return LeaderboardView{Session: s, Controls: s.Controls(), Page: p}, nil
}

func (b *Bot) identity(ctx context.Context, userID string) models.Identity {
	if b.directory != nil {
		if ident, err := b.directory.Resolve(ctx, userID); err == nil {
			return ident
		}
	}
	return leaderboard.FallbackIdentity(userID)
}
