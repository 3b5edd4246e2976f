package ledger

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/levelbot/levelbot/internal/metrics"
	"github.com/levelbot/levelbot/internal/models"
	"github.com/levelbot/levelbot/internal/storage"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSelfTransfer      = errors.New("cannot transfer to the same account")
)

// Ledger owns the wallet/bank table. Every mutation is one read-modify-write
// of that table, so balances checked in a call are the balances written.
type Ledger struct {
	table   *storage.Table[models.LedgerAccount]
	earnMax int64
	roll    func(n int64) int64
	log     *logrus.Logger
	metrics *metrics.BotMetrics
}

// NewLedger creates a ledger whose Earn grants 0..earnMax coins inclusive.
func NewLedger(table *storage.Table[models.LedgerAccount], earnMax int64, log *logrus.Logger, m *metrics.BotMetrics) *Ledger {
	return &Ledger{
		table:   table,
		earnMax: earnMax,
		roll:    rand.Int64N,
		log:     log,
		metrics: m,
	}
}

// SetRoll overrides the random source. It is intended for tests.
func (l *Ledger) SetRoll(roll func(n int64) int64) {
	if roll == nil {
		roll = rand.Int64N
	}
	l.roll = roll
}

func account(rows map[string]*models.LedgerAccount, userID string) (*models.LedgerAccount, bool) {
	acct, ok := rows[userID]
	if !ok {
		acct = &models.LedgerAccount{}
		rows[userID] = acct
	}
	return acct, !ok
}

// EnsureAccount opens a zero-balance account if userID has none and
// reports whether it created one.
func (l *Ledger) EnsureAccount(ctx context.Context, userID string) (bool, error) {
	var created bool
	err := l.table.Update(ctx, func(rows map[string]*models.LedgerAccount) (bool, error) {
		_, created = account(rows, userID)
		return created, nil
	})
	if err != nil {
		return false, err
	}
	if created {
		l.log.WithField("user_id", userID).Info("opened ledger account")
	}
	return created, nil
}

// GetBalance returns the user's balances, opening the account first.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (models.LedgerAccount, error) {
	var out models.LedgerAccount
	err := l.table.Update(ctx, func(rows map[string]*models.LedgerAccount) (bool, error) {
		acct, created := account(rows, userID)
		out = *acct
		return created, nil
	})
	return out, err
}

// EarnResult is the outcome of one earning action.
type EarnResult struct {
	Amount int64 `json:"amount"`
	Wallet int64 `json:"wallet"`
}

// Earn grants a uniform 0..earnMax coins to the user's wallet. Cooldowns
// are enforced by the caller.
func (l *Ledger) Earn(ctx context.Context, userID string) (EarnResult, error) {
	amount := l.roll(l.earnMax + 1)

	var res EarnResult
	err := l.table.Update(ctx, func(rows map[string]*models.LedgerAccount) (bool, error) {
		acct, _ := account(rows, userID)
		acct.Wallet += amount
		res = EarnResult{Amount: amount, Wallet: acct.Wallet}
		return true, nil
	})
	if err != nil {
		return EarnResult{}, err
	}

	l.metrics.ObserveCoinsEarned(amount)
	l.log.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  amount,
	}).Debug("coins earned")
	return res, nil
}

// Deposit moves amount from wallet to bank.
func (l *Ledger) Deposit(ctx context.Context, userID string, amount int64) (models.LedgerAccount, error) {
	return l.move(ctx, userID, amount, func(a *models.LedgerAccount) error {
		if a.Wallet < amount {
			return ErrInsufficientFunds
		}
		a.Wallet -= amount
		a.Bank += amount
		return nil
	})
}

// Withdraw moves amount from bank to wallet.
func (l *Ledger) Withdraw(ctx context.Context, userID string, amount int64) (models.LedgerAccount, error) {
	return l.move(ctx, userID, amount, func(a *models.LedgerAccount) error {
		if a.Bank < amount {
			return ErrInsufficientFunds
		}
		a.Bank -= amount
		a.Wallet += amount
		return nil
	})
}

func (l *Ledger) move(ctx context.Context, userID string, amount int64, apply func(*models.LedgerAccount) error) (models.LedgerAccount, error) {
	if amount <= 0 {
		return models.LedgerAccount{}, ErrInvalidAmount
	}
	var out models.LedgerAccount
	err := l.table.Update(ctx, func(rows map[string]*models.LedgerAccount) (bool, error) {
		acct, _ := account(rows, userID)
		if err := apply(acct); err != nil {
			return false, err
		}
		out = *acct
		return true, nil
	})
	return out, err
}

// Transfer moves amount between two wallets. Both accounts are read and
// written under the same table lock, so no lock ordering is needed.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount int64) (models.LedgerAccount, error) {
	if amount <= 0 {
		return models.LedgerAccount{}, ErrInvalidAmount
	}
	if fromID == toID {
		return models.LedgerAccount{}, ErrSelfTransfer
	}

	var out models.LedgerAccount
	err := l.table.Update(ctx, func(rows map[string]*models.LedgerAccount) (bool, error) {
		debit, _ := account(rows, fromID)
		if debit.Wallet < amount {
			return false, ErrInsufficientFunds
		}
		credit, _ := account(rows, toID)
		debit.Wallet -= amount
		credit.Wallet += amount
		out = *debit
		return true, nil
	})
	if err != nil {
		return models.LedgerAccount{}, err
	}

	l.log.WithFields(logrus.Fields{
		"from":   fromID,
		"to":     toID,
		"amount": amount,
	}).Info("coins transferred")
	return out, nil
}
