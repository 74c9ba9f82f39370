package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutRail is the channel a payout travels over.
type PayoutRail string

const (
	RailBankTransfer PayoutRail = "bank_transfer"
	RailPayPal       PayoutRail = "paypal"
	RailCrypto       PayoutRail = "crypto"
)

// PayoutStatus tracks a withdrawal request to completion.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
	PayoutFailed     PayoutStatus = "failed"
	PayoutCancelled  PayoutStatus = "cancelled"
)

// UnlockState classifies whether a settled auction's earnings may be
// withdrawn. Only StateUnlocked permits a payout; every other state is
// locked. Classification lives in the payout package; this enum is the
// persisted snapshot on the payout row.
type UnlockState string

const (
	StateNoVideoRequired UnlockState = "no_video_required"
	StateAwaitingUpload  UnlockState = "awaiting_upload"
	StateAwaitingWatch   UnlockState = "awaiting_watch"
	StateUnlocked        UnlockState = "unlocked"
	StateExpired         UnlockState = "expired"
)

// Unlocked reports whether the state permits withdrawal.
// StateNoVideoRequired is auto-unlocked; StateExpired stays locked
// pending manual resolution.
func (s UnlockState) Unlocked() bool {
	return s == StateUnlocked || s == StateNoVideoRequired
}

// Payout is a transfer of accumulated professional earnings out of the
// platform. Destination snapshots the rail-specific target (IBAN,
// PayPal email, wallet address) at request time so later profile edits
// cannot redirect an in-flight payout.
type Payout struct {
	ID            string
	ProfileID     string
	Amount        decimal.Decimal
	Currency      string
	Rail          PayoutRail
	Destination   string
	Status        PayoutStatus
	UnlockState   UnlockState
	BatchID       *string
	ProcessorRef  string // Stripe transfer id, tx hash, ...
	AuthSignature string // treasury authorization, crypto rail only
	FailureReason string
	RequestedAt   time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
}
