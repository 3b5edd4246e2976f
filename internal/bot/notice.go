package bot

import (
	"errors"
	"fmt"

	"github.com/levelbot/levelbot/internal/cooldown"
	"github.com/levelbot/levelbot/internal/ledger"
	"github.com/levelbot/levelbot/internal/paginator"
)

var (
	ErrWrongChannel = errors.New("command used outside the bot channel")
	ErrInvalidInput = errors.New("invalid input")
)

type NoticeKind string

const (
	NoticeWrongChannel      NoticeKind = "wrong_channel"
	NoticeCooldown          NoticeKind = "cooldown"
	NoticeInsufficientFunds NoticeKind = "insufficient_funds"
	NoticeInvalidInput      NoticeKind = "invalid_input"
	NoticeNotRequester      NoticeKind = "not_requester"
	NoticeSessionExpired    NoticeKind = "session_expired"
	NoticeFailure           NoticeKind = "failure"
)

// Notice is a user-facing error. Commands return it wrapped around the
// underlying cause.
type Notice struct {
	Kind   NoticeKind              `json:"kind"`
	Title  string                  `json:"title"`
	Detail string                  `json:"detail"`
	Retry  *cooldown.RemainingTime `json:"retry_after,omitempty"`
	Err    error                   `json:"-"`
}

func (n *Notice) Error() string {
	if n.Err != nil {
		return fmt.Sprintf("%s: %v", n.Kind, n.Err)
	}
	return string(n.Kind)
}

func (n *Notice) Unwrap() error {
	return n.Err
}

// AsNotice classifies err. A nil error yields nil.
func AsNotice(err error) *Notice {
	if err == nil {
		return nil
	}
	var n *Notice
	if errors.As(err, &n) {
		return n
	}

	var cd *cooldown.Error
	switch {
	case errors.Is(err, ErrWrongChannel):
		return &Notice{
			Kind:   NoticeWrongChannel,
			Title:  "Wrong Channel",
			Detail: "Please use the bot in the designated bot channel.",
			Err:    err,
		}
	case errors.As(err, &cd):
		left := cd.Remaining()
		return &Notice{
			Kind:   NoticeCooldown,
			Title:  "Cooldown Active",
			Detail: fmt.Sprintf("You've already begged recently! Try again in %s.", left),
			Retry:  &left,
			Err:    err,
		}
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return &Notice{
			Kind:   NoticeInsufficientFunds,
			Title:  "Insufficient Funds",
			Detail: "You don't have enough coins for that.",
			Err:    err,
		}
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrSelfTransfer), errors.Is(err, ErrInvalidInput):
		return &Notice{
			Kind:   NoticeInvalidInput,
			Title:  "Invalid Input",
			Detail: err.Error(),
			Err:    err,
		}
	case errors.Is(err, paginator.ErrNotRequester):
		return &Notice{
			Kind:   NoticeNotRequester,
			Title:  "Not Your Leaderboard",
			Detail: "Only the member who opened this leaderboard can change pages.",
			Err:    err,
		}
	case errors.Is(err, paginator.ErrSessionExpired), errors.Is(err, paginator.ErrSessionNotFound):
		return &Notice{
			Kind:   NoticeSessionExpired,
			Title:  "Leaderboard Expired",
			Detail: "This leaderboard is no longer active. Open a new one.",
			Err:    err,
		}
	default:
		return &Notice{
			Kind:   NoticeFailure,
			Title:  "Error Occurred",
			Detail: fmt.Sprintf("An unexpected error happened: %v", err),
			Err:    err,
		}
	}
}
