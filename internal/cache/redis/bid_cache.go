package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// BidCache implements domain.BidCache with a capped Redis list per auction:
// LPUSH newest-first, LTRIM to the keep limit. The database remains the
// authoritative bid history; this list only feeds the live auction view.
//
// Key schema:
//
//	bids:{auctionID} - list of JSON-serialized bids, newest first
type BidCache struct {
	rdb *redis.Client
}

// NewBidCache creates a BidCache backed by the given Client.
func NewBidCache(c *Client) *BidCache {
	return &BidCache{rdb: c.Underlying()}
}

func bidsKey(auctionID string) string { return "bids:" + auctionID }

// Push prepends a bid and trims the list to keep entries.
func (bc *BidCache) Push(ctx context.Context, b domain.Bid, keep int) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("redis: marshal bid %s: %w", b.ID, err)
	}

	key := bidsKey(b.AuctionID)

	pipe := bc.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	if keep > 0 {
		pipe.LTrim(ctx, key, 0, int64(keep)-1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: push bid %s: %w", b.ID, err)
	}
	return nil
}

// Recent returns up to limit of an auction's most recent bids, newest first.
// A missing key yields an empty slice, not an error.
func (bc *BidCache) Recent(ctx context.Context, auctionID string, limit int) ([]domain.Bid, error) {
	if limit <= 0 {
		limit = 10
	}

	raw, err := bc.rdb.LRange(ctx, bidsKey(auctionID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: recent bids %s: %w", auctionID, err)
	}

	bids := make([]domain.Bid, 0, len(raw))
	for _, item := range raw {
		var b domain.Bid
		if err := json.Unmarshal([]byte(item), &b); err != nil {
			// A corrupt entry is skipped rather than failing the view.
			continue
		}
		bids = append(bids, b)
	}
	return bids, nil
}

// Compile-time interface check.
var _ domain.BidCache = (*BidCache)(nil)
