package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentProcessor identifies which upstream captured the payment.
type PaymentProcessor string

const (
	ProcessorStripe    PaymentProcessor = "stripe"
	ProcessorCrossmint PaymentProcessor = "crossmint"
	ProcessorManual    PaymentProcessor = "manual"
)

// TransactionStatus tracks a payment attempt through capture.
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionProcessing TransactionStatus = "processing"
	TransactionSucceeded  TransactionStatus = "succeeded"
	TransactionFailed     TransactionStatus = "failed"
	TransactionRefunded   TransactionStatus = "refunded"
)

// Transaction is a single payment attempt or capture against a payment
// link or a settled auction. GrossAmount is what the payer is charged
// (base plus platform fee), NetAmount is what the professional earns.
// GrossAmount == NetAmount + FeeAmount always.
type Transaction struct {
	ID            string
	LinkID        *string // set for payment-link charges
	AuctionID     *string // set for auction charges
	PayerID       *string // nil for anonymous link payments
	ProfileID     string  // professional being paid
	Processor     PaymentProcessor
	ProcessorRef  string // pi_..., checkout session id, Crossmint order id
	Currency      string
	GrossAmount   decimal.Decimal
	FeeAmount     decimal.Decimal
	NetAmount     decimal.Decimal
	FeePercent    decimal.Decimal // schedule rate snapshot at creation
	Status        TransactionStatus
	FailureReason string
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	SucceededAt   *time.Time
}

// Terminal reports whether the status admits no further transitions.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionSucceeded || s == TransactionFailed || s == TransactionRefunded
}

// CanTransition reports whether a status update is a legal move.
// Amounts on a transaction are immutable once created; only the status
// walks forward.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	switch s {
	case TransactionPending:
		return to == TransactionProcessing || to == TransactionSucceeded || to == TransactionFailed
	case TransactionProcessing:
		return to == TransactionSucceeded || to == TransactionFailed
	case TransactionSucceeded:
		return to == TransactionRefunded
	default:
		return false
	}
}
