package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid is a single offer on an open auction.
type Bid struct {
	ID        string
	AuctionID string
	BidderID  string
	Amount    decimal.Decimal
	PlacedAt  time.Time
}
