package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// rateSetLua stores a rate only when the incoming version is strictly newer
// than the stored one, keeping versions monotonic per pair even when the
// refresher races a manual update.
const rateSetLua = `
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
    return 0
end
redis.call('HSET', KEYS[1], 'price', ARGV[1], 'version', ARGV[2], 'fetched_at', ARGV[3])
return 1
`

// RateCache implements domain.RateCache using one Redis hash per currency
// pair with fields "price", "version", and "fetched_at".
//
// Key schema:
//
//	rate:{base}:{quote} - hash
type RateCache struct {
	rdb     *redis.Client
	rateSet *redis.Script
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{
		rdb:     c.Underlying(),
		rateSet: redis.NewScript(rateSetLua),
	}
}

func rateKey(base, quote string) string { return "rate:" + base + ":" + quote }

// SetRate stores an exchange rate. Writes with a version at or below the
// stored one are ignored; versions only move forward.
func (rc *RateCache) SetRate(ctx context.Context, r domain.ExchangeRate) error {
	err := rc.rateSet.Run(ctx, rc.rdb,
		[]string{rateKey(r.Base, r.Quote)},
		r.Price.String(),
		r.Version,
		r.FetchedAt.UnixNano(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set rate %s/%s: %w", r.Base, r.Quote, err)
	}
	return nil
}

// GetRate retrieves the stored rate for a pair.
// It returns domain.ErrNotFound when no rate is cached.
func (rc *RateCache) GetRate(ctx context.Context, base, quote string) (domain.ExchangeRate, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey(base, quote)).Result()
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: get rate %s/%s: %w", base, quote, err)
	}
	if len(vals) == 0 {
		return domain.ExchangeRate{}, domain.ErrNotFound
	}

	price, err := decimal.NewFromString(vals["price"])
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: parse rate price %s/%s: %w", base, quote, err)
	}

	version, err := strconv.ParseInt(vals["version"], 10, 64)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: parse rate version %s/%s: %w", base, quote, err)
	}

	r := domain.ExchangeRate{
		Base:    base,
		Quote:   quote,
		Price:   price,
		Version: version,
	}
	if tsStr, ok := vals["fetched_at"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			r.FetchedAt = time.Unix(0, tsNano)
		}
	}
	return r, nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
