package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/decodebeauty/decode-server/internal/service"
)

// sweepBatchSize bounds one sweep pass over overdue tokens.
const sweepBatchSize = 200

// TokenSweeper expires overdue confirmation-video tokens and expires
// due payment links on an interval.
type TokenSweeper struct {
	videos   *service.VideoService
	payments *service.PaymentService
	interval time.Duration
	logger   *slog.Logger
}

// NewTokenSweeper creates a TokenSweeper running every interval.
func NewTokenSweeper(videos *service.VideoService, payments *service.PaymentService, interval time.Duration, logger *slog.Logger) *TokenSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &TokenSweeper{
		videos:   videos,
		payments: payments,
		interval: interval,
		logger:   logger.With(slog.String("component", "token_sweeper")),
	}
}

// Run sweeps on every tick until the context is cancelled.
func (s *TokenSweeper) Run(ctx context.Context) error {
	s.logger.Info("token sweeper started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now().UTC()

			swept, err := s.videos.SweepOverdue(ctx, now, sweepBatchSize)
			if err != nil {
				s.logger.Error("token sweep failed", slog.String("error", err.Error()))
			} else if swept > 0 {
				s.logger.Info("expired overdue tokens", slog.Int("count", swept))
			}

			expired, err := s.payments.ExpireDueLinks(ctx, now)
			if err != nil {
				s.logger.Error("link expiry failed", slog.String("error", err.Error()))
			} else if expired > 0 {
				s.logger.Info("expired payment links", slog.Int64("count", expired))
			}
		}
	}
}
