package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletEntryType is the direction of a ledger entry.
type WalletEntryType string

const (
	WalletCredit WalletEntryType = "credit"
	WalletDebit  WalletEntryType = "debit"
)

// WalletTransaction is one append-only ledger entry for a profile.
// Amount is always positive; direction comes from Type. Balances are
// derived by summation, never stored.
type WalletTransaction struct {
	ID        string
	ProfileID string
	Type      WalletEntryType
	Amount    decimal.Decimal
	Currency  string
	Reference string // "transaction:<id>", "payout:<id>", "adjustment"
	Note      string
	CreatedAt time.Time
}

// Signed returns the amount with direction applied: positive for
// credits, negative for debits.
func (t WalletTransaction) Signed() decimal.Decimal {
	if t.Type == WalletDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
