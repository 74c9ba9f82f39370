package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/fees"
)

// RateService serves versioned exchange rates from the cache, seeded
// from the configured pegs. The refresher worker bumps versions on its
// interval; the cache's compare-and-set keeps them monotonic even with
// concurrent refreshers.
type RateService struct {
	cache  domain.RateCache
	pegs   []domain.ExchangeRate
	logger *slog.Logger
}

// NewRateService creates a RateService. pegs are the configured
// currency pairs, e.g. USD/AED at 3.6725.
func NewRateService(cache domain.RateCache, pegs []domain.ExchangeRate, logger *slog.Logger) *RateService {
	return &RateService{
		cache:  cache,
		pegs:   pegs,
		logger: logger.With(slog.String("component", "rate_service")),
	}
}

// Current returns the freshest rate covering the pair. A cache miss
// falls back to the configured peg and seeds the cache with it.
func (s *RateService) Current(ctx context.Context, base, quote string) (domain.ExchangeRate, error) {
	rate, err := s.cache.GetRate(ctx, base, quote)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "rate cache read failed, using peg",
			slog.String("pair", base+"/"+quote),
			slog.String("error", err.Error()),
		)
	}

	peg, ok := s.pegFor(base, quote)
	if !ok {
		return domain.ExchangeRate{}, fmt.Errorf("rate_service: no rate for %s/%s: %w", base, quote, domain.ErrRateMismatch)
	}
	peg.FetchedAt = time.Now().UTC()
	if setErr := s.cache.SetRate(ctx, peg); setErr != nil {
		s.logger.WarnContext(ctx, "rate cache seed failed", slog.String("error", setErr.Error()))
	}
	return peg, nil
}

// Convert moves an amount between currencies using the current rate.
func (s *RateService) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount.Round(2), nil
	}
	rate, err := s.Current(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	converted, err := fees.Convert(amount, from, to, rate)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("rate_service: convert %s %s->%s: %w", amount, from, to, err)
	}
	return converted, nil
}

// Refresh re-quotes every configured peg with a bumped version. The
// cache rejects writes that would move a version backwards, so
// overlapping refreshers cannot regress a pair.
func (s *RateService) Refresh(ctx context.Context) error {
	now := time.Now().UTC()
	var firstErr error
	for _, peg := range s.pegs {
		next := peg
		next.Version = 1
		next.FetchedAt = now
		if cur, err := s.cache.GetRate(ctx, peg.Base, peg.Quote); err == nil {
			next.Version = cur.Version + 1
		}
		if err := s.cache.SetRate(ctx, next); err != nil {
			s.logger.WarnContext(ctx, "rate refresh failed",
				slog.String("pair", peg.Base+"/"+peg.Quote),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.logger.DebugContext(ctx, "rate refreshed",
			slog.String("pair", peg.Base+"/"+peg.Quote),
			slog.Int64("version", next.Version),
		)
	}
	if firstErr != nil {
		return fmt.Errorf("rate_service: refresh: %w", firstErr)
	}
	return nil
}

func (s *RateService) pegFor(base, quote string) (domain.ExchangeRate, bool) {
	for _, peg := range s.pegs {
		if peg.Covers(base, quote) {
			return peg, true
		}
	}
	return domain.ExchangeRate{}, false
}
