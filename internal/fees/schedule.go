package fees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// Schedule is an immutable per-channel rate table. Callers resolve a
// Schedule once per request and pass the looked-up percentage
// explicitly into the calculators; nothing reads a rate from a global.
type Schedule struct {
	rates   map[domain.FeeChannel]decimal.Decimal
	version int64
}

// NewSchedule builds a schedule after validating every rate.
func NewSchedule(rates map[domain.FeeChannel]decimal.Decimal, version int64) (Schedule, error) {
	if len(rates) == 0 {
		return Schedule{}, fmt.Errorf("fees: empty schedule: %w", domain.ErrInvalidPercentage)
	}
	copied := make(map[domain.FeeChannel]decimal.Decimal, len(rates))
	for ch, pct := range rates {
		if err := validatePercent(pct); err != nil {
			return Schedule{}, fmt.Errorf("fees: channel %s: %w", ch, err)
		}
		copied[ch] = pct
	}
	return Schedule{rates: copied, version: version}, nil
}

// RateFor returns the percentage for a channel. Unknown channels are
// an error, never a silent zero.
func (s Schedule) RateFor(channel domain.FeeChannel) (decimal.Decimal, error) {
	pct, ok := s.rates[channel]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("fees: no rate for channel %q: %w", channel, domain.ErrNotFound)
	}
	return pct, nil
}

// Version identifies which policy revision produced this schedule.
func (s Schedule) Version() int64 { return s.version }

// Resolver builds the request-scoped Schedule from the policy store,
// falling back to the configured defaults when the store has no rows
// or is unreachable. The fallback keeps payments flowing through a
// database outage at yesterday's configured rates.
type Resolver struct {
	policies domain.FeePolicyStore
	defaults Schedule
	logger   *slog.Logger
}

// NewResolver creates a schedule resolver. policies may be nil in
// tests; resolution then always yields the defaults.
func NewResolver(policies domain.FeePolicyStore, defaults Schedule, logger *slog.Logger) *Resolver {
	return &Resolver{
		policies: policies,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "fee_resolver")),
	}
}

// Resolve returns the schedule in force right now: stored policies
// override the defaults channel by channel.
func (r *Resolver) Resolve(ctx context.Context) Schedule {
	if r.policies == nil {
		return r.defaults
	}
	rows, err := r.policies.List(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "fee policy lookup failed, using defaults",
				slog.String("error", err.Error()),
			)
		}
		return r.defaults
	}
	if len(rows) == 0 {
		return r.defaults
	}

	merged := make(map[domain.FeeChannel]decimal.Decimal, len(r.defaults.rates))
	for ch, pct := range r.defaults.rates {
		merged[ch] = pct
	}
	version := r.defaults.version
	for _, row := range rows {
		if err := validatePercent(row.Percent); err != nil {
			r.logger.WarnContext(ctx, "skipping invalid fee policy row",
				slog.String("channel", string(row.Channel)),
				slog.String("percent", row.Percent.String()),
			)
			continue
		}
		merged[row.Channel] = row.Percent
		if row.Version > version {
			version = row.Version
		}
	}
	return Schedule{rates: merged, version: version}
}
