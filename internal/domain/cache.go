package domain

import (
	"context"
	"time"
)

// AuctionCache provides fast snapshots of live auctions for the public
// read path.
type AuctionCache interface {
	Set(ctx context.Context, a Auction) error
	Get(ctx context.Context, id string) (Auction, error)
	Invalidate(ctx context.Context, id string) error
}

// BidCache keeps a capped list of recent bids per auction.
type BidCache interface {
	Push(ctx context.Context, b Bid, keep int) error
	Recent(ctx context.Context, auctionID string, limit int) ([]Bid, error)
}

// RateCache stores versioned exchange rates per currency pair.
type RateCache interface {
	SetRate(ctx context.Context, r ExchangeRate) error
	GetRate(ctx context.Context, base, quote string) (ExchangeRate, error)
}

// OTPCache holds pending verification challenges with TTL.
type OTPCache interface {
	Put(ctx context.Context, c OTPChallenge) error
	Get(ctx context.Context, profileID string, purpose OTPPurpose) (OTPChallenge, error)
	IncrementAttempts(ctx context.Context, profileID string, purpose OTPPurpose) (int, error)
	Delete(ctx context.Context, profileID string, purpose OTPPurpose) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
