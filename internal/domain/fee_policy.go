package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeChannel names one of the platform's pricing channels. Each
// channel carries its own percentage in the fee schedule; call sites
// never hard-code a rate.
type FeeChannel string

const (
	ChannelPaymentIntent FeeChannel = "payment_intent"
	ChannelCrossmint     FeeChannel = "crossmint"
	ChannelCheckout      FeeChannel = "checkout"
	ChannelAuction       FeeChannel = "auction"
)

// FeePolicy is one channel's rate in the policy store. Rows override
// the config defaults when present; Version increases on every change.
type FeePolicy struct {
	Channel     FeeChannel
	Percent     decimal.Decimal
	Version     int64
	EffectiveAt time.Time
	UpdatedAt   time.Time
}

// ExchangeRate is a versioned FX quote: Price is how many Quote units
// one Base unit buys (1 USD = 3.6725 AED has Base "USD", Quote "AED",
// Price 3.6725). Version is monotonic per pair so consumers can detect
// stale reads.
type ExchangeRate struct {
	Base      string
	Quote     string
	Price     decimal.Decimal
	Version   int64
	FetchedAt time.Time
}

// Covers reports whether the rate can convert between from and to, in
// either direction.
func (r ExchangeRate) Covers(from, to string) bool {
	return (r.Base == from && r.Quote == to) || (r.Base == to && r.Quote == from)
}
