package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// OTPCache implements domain.OTPCache using Redis hashes with a TTL matching
// the challenge expiry. Only the bcrypt digest of the code is stored; the
// attempt counter lives in its own hash field so it can be bumped atomically.
//
// Key schema:
//
//	otp:{profileID}:{purpose} - hash with fields "data" (JSON) and "attempts"
type OTPCache struct {
	rdb *redis.Client
}

// NewOTPCache creates an OTPCache backed by the given Client.
func NewOTPCache(c *Client) *OTPCache {
	return &OTPCache{rdb: c.Underlying()}
}

func otpKey(profileID string, purpose domain.OTPPurpose) string {
	return "otp:" + profileID + ":" + string(purpose)
}

// Put stores a pending challenge, replacing any previous one for the same
// profile and purpose. The key expires with the challenge.
func (oc *OTPCache) Put(ctx context.Context, c domain.OTPChallenge) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis: marshal otp challenge: %w", err)
	}

	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("redis: otp challenge already expired: %w", domain.ErrTokenExpired)
	}

	key := otpKey(c.ProfileID, c.Purpose)

	pipe := oc.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "data", data, "attempts", c.Attempts)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put otp challenge %s: %w", c.ProfileID, err)
	}
	return nil
}

// Get retrieves a pending challenge, attempt counter included.
// It returns domain.ErrNotFound when no challenge is outstanding.
func (oc *OTPCache) Get(ctx context.Context, profileID string, purpose domain.OTPPurpose) (domain.OTPChallenge, error) {
	key := otpKey(profileID, purpose)

	vals, err := oc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.OTPChallenge{}, fmt.Errorf("redis: get otp challenge %s: %w", profileID, err)
	}
	if len(vals) == 0 {
		return domain.OTPChallenge{}, domain.ErrNotFound
	}

	var c domain.OTPChallenge
	if err := json.Unmarshal([]byte(vals["data"]), &c); err != nil {
		return domain.OTPChallenge{}, fmt.Errorf("redis: unmarshal otp challenge %s: %w", profileID, err)
	}

	var attempts int
	if _, err := fmt.Sscanf(vals["attempts"], "%d", &attempts); err == nil {
		c.Attempts = attempts
	}
	return c, nil
}

// IncrementAttempts bumps the failed-attempt counter and returns the new
// value. The caller compares it against the configured maximum.
func (oc *OTPCache) IncrementAttempts(ctx context.Context, profileID string, purpose domain.OTPPurpose) (int, error) {
	key := otpKey(profileID, purpose)

	exists, err := oc.rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: otp attempts exists %s: %w", profileID, err)
	}
	if exists == 0 {
		return 0, domain.ErrNotFound
	}

	n, err := oc.rdb.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("redis: increment otp attempts %s: %w", profileID, err)
	}
	return int(n), nil
}

// Delete removes a challenge after successful verification or lockout.
func (oc *OTPCache) Delete(ctx context.Context, profileID string, purpose domain.OTPPurpose) error {
	if err := oc.rdb.Del(ctx, otpKey(profileID, purpose)).Err(); err != nil {
		return fmt.Errorf("redis: delete otp challenge %s: %w", profileID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OTPCache = (*OTPCache)(nil)
