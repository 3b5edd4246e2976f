package models

// LedgerAccount holds the two coin balances of a user.
// Balances are never negative; only the ledger engine mutates them.
type LedgerAccount struct {
	Wallet int64 `json:"wallet"`
	Bank   int64 `json:"bank"`
}

// Total returns wallet plus bank.
func (a LedgerAccount) Total() int64 {
	return a.Wallet + a.Bank
}
