package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// Archiver moves aged ledger entries and processed webhook events from
// the database to S3 cold storage on a cron schedule.
type Archiver struct {
	blobArchiver         domain.Archiver
	ledgerRetentionDays  int
	webhookRetentionDays int
	logger               *slog.Logger
}

// NewArchiver creates an Archiver with per-table retention windows.
func NewArchiver(blobArchiver domain.Archiver, ledgerRetentionDays, webhookRetentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:         blobArchiver,
		ledgerRetentionDays:  ledgerRetentionDays,
		webhookRetentionDays: webhookRetentionDays,
		logger:               logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass against both tables. A retention
// of zero days disables that table's archival.
func (a *Archiver) Run(ctx context.Context) error {
	now := time.Now().UTC()

	if a.ledgerRetentionDays > 0 {
		cutoff := now.Add(-time.Duration(a.ledgerRetentionDays) * 24 * time.Hour)
		archived, err := a.blobArchiver.ArchiveLedger(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("worker: archive ledger before %v: %w", cutoff, err)
		}
		if archived > 0 {
			a.logger.Info("archived ledger entries", slog.Int64("count", archived))
		}
	}

	if a.webhookRetentionDays > 0 {
		cutoff := now.Add(-time.Duration(a.webhookRetentionDays) * 24 * time.Hour)
		archived, err := a.blobArchiver.ArchiveWebhookEvents(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("worker: archive webhook events before %v: %w", cutoff, err)
		}
		if archived > 0 {
			a.logger.Info("archived webhook events", slog.Int64("count", archived))
		}
	}

	return nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled.
// It supports cron expressions in the standard 5-field format:
// "minute hour day-of-month month day-of-week"
//
// Example: "0 3 * * *" runs nightly at 3:00 AM.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("worker: parsing cron expression %q: %w", cronExpr, err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
