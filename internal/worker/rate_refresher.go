package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/decodebeauty/decode-server/internal/service"
)

// RateRefresher re-seeds the exchange-rate snapshot on an interval so
// every instance converges on the same rate version.
type RateRefresher struct {
	rates    *service.RateService
	interval time.Duration
	logger   *slog.Logger
}

// NewRateRefresher creates a RateRefresher running every interval.
func NewRateRefresher(rates *service.RateService, interval time.Duration, logger *slog.Logger) *RateRefresher {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RateRefresher{
		rates:    rates,
		interval: interval,
		logger:   logger.With(slog.String("component", "rate_refresher")),
	}
}

// Run refreshes on start and on every tick until the context is
// cancelled.
func (r *RateRefresher) Run(ctx context.Context) error {
	r.logger.Info("rate refresher started", slog.Duration("interval", r.interval))

	if err := r.rates.Refresh(ctx); err != nil {
		r.logger.Warn("initial rate refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.rates.Refresh(ctx); err != nil {
				r.logger.Error("rate refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
