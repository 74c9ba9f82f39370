package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/decodebeauty/decode-server/internal/service"
)

// PayoutRunner fires the weekly payout batch. The batch itself is
// idempotent and guarded by a distributed lock, so running alongside
// the cron endpoint or a second instance is safe.
type PayoutRunner struct {
	payouts *service.PayoutService
	weekday string
	hourUTC int
	logger  *slog.Logger
}

// NewPayoutRunner creates a PayoutRunner firing on the given weekday
// at hourUTC.
func NewPayoutRunner(payouts *service.PayoutService, weekday string, hourUTC int, logger *slog.Logger) *PayoutRunner {
	return &PayoutRunner{
		payouts: payouts,
		weekday: weekday,
		hourUTC: hourUTC,
		logger:  logger.With(slog.String("component", "payout_runner")),
	}
}

// Run waits for each weekly trigger and executes the batch until the
// context is cancelled.
func (r *PayoutRunner) Run(ctx context.Context) error {
	cronExpr := fmt.Sprintf("0 %d * * %d", r.hourUTC, weekdayNumber(r.weekday))
	r.logger.Info("payout runner started",
		slog.String("weekday", r.weekday),
		slog.Int("hour_utc", r.hourUTC),
	)

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("worker: payout schedule: %w", err)
		}
		r.logger.Info("next payout batch scheduled", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			result, err := r.payouts.RunBatch(ctx)
			if err != nil {
				r.logger.Error("payout batch failed", slog.String("error", err.Error()))
				continue
			}
			r.logger.Info("payout batch complete",
				slog.Int("paid", result.Paid),
				slog.Int("queued", result.Queued),
				slog.Int("failed", result.Failed),
				slog.Int("skipped", result.Skipped),
			)
		}
	}
}
