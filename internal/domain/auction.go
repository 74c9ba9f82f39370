package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus represents the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionOpen      AuctionStatus = "open"
	AuctionClosed    AuctionStatus = "closed"
	AuctionSettled   AuctionStatus = "settled"
	AuctionCancelled AuctionStatus = "cancelled"
)

// Auction is a live bid-based sale of a professional's service. The
// platform fee applies to the profit (winning bid minus start price),
// not the whole amount; FeePercent snapshots the schedule rate at
// creation so a later policy change cannot move a running auction.
type Auction struct {
	ID            string
	ProfileID     string // the professional ("model") being bid on
	Title         string
	Description   string
	StartPrice    decimal.Decimal
	CurrentPrice  decimal.Decimal // highest bid, StartPrice until first bid
	MinIncrement  decimal.Decimal
	Currency      string
	FeePercent    decimal.Decimal
	RequiresVideo bool // confirmation video gates the payout
	Status        AuctionStatus
	WinnerID      *string
	BidCount      int
	EndsAt        time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Settlement is the persisted final accounting of a closed auction:
// profit split between platform fee and the professional's net.
// PlatformFee + ModelNetAmount == Profit always.
type Settlement struct {
	AuctionID      string
	WinningBid     decimal.Decimal
	StartPrice     decimal.Decimal
	Profit         decimal.Decimal
	PlatformFee    decimal.Decimal
	ModelNetAmount decimal.Decimal
	SettledAt      time.Time
}
