package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/decodebeauty/decode-server/internal/service"
)

// settleBatchSize bounds one settle pass over ended auctions.
const settleBatchSize = 100

// AutoSettler settles auctions whose end time has passed so winners do
// not wait on the owner pressing settle.
type AutoSettler struct {
	auctions *service.AuctionService
	interval time.Duration
	logger   *slog.Logger
}

// NewAutoSettler creates an AutoSettler running every interval.
func NewAutoSettler(auctions *service.AuctionService, interval time.Duration, logger *slog.Logger) *AutoSettler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AutoSettler{
		auctions: auctions,
		interval: interval,
		logger:   logger.With(slog.String("component", "auto_settler")),
	}
}

// Run settles due auctions on every tick until the context is cancelled.
func (s *AutoSettler) Run(ctx context.Context) error {
	s.logger.Info("auto settler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			settled, err := s.auctions.SettleDue(ctx, time.Now().UTC(), settleBatchSize)
			if err != nil {
				s.logger.Error("auto settle pass failed", slog.String("error", err.Error()))
				continue
			}
			if settled > 0 {
				s.logger.Info("settled ended auctions", slog.Int("count", settled))
			}
		}
	}
}
