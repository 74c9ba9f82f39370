package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentLinkStatus tracks the link lifecycle.
type PaymentLinkStatus string

const (
	PaymentLinkActive    PaymentLinkStatus = "active"
	PaymentLinkPaid      PaymentLinkStatus = "paid"
	PaymentLinkCancelled PaymentLinkStatus = "cancelled"
	PaymentLinkExpired   PaymentLinkStatus = "expired"
)

// PaymentLink is a shareable record representing a requested charge
// for a beauty service. The amount is the professional's base price;
// the platform fee is added on top at payment time.
type PaymentLink struct {
	ID          string
	ProfileID   string // professional who gets paid
	Slug        string // short URL-safe share token
	Title       string
	Description string
	Amount      decimal.Decimal // base price, currency minor-unit decimal
	Currency    string          // ISO 4217, e.g. "AED"
	FeeChannel  FeeChannel      // which schedule rate applies at payment time
	Status      PaymentLinkStatus
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Open reports whether the link can still be paid.
func (l PaymentLink) Open(now time.Time) bool {
	if l.Status != PaymentLinkActive {
		return false
	}
	if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return false
	}
	return true
}
