package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// archiveCron is the nightly archive schedule.
const archiveCron = "0 3 * * *"

// Orchestrator manages all background goroutines: the weekly payout
// batch, the token sweeper, the auto settler, the rate refresher, and
// cold-storage archival. Any nil job is skipped.
type Orchestrator struct {
	payoutRunner  *PayoutRunner
	tokenSweeper  *TokenSweeper
	autoSettler   *AutoSettler
	rateRefresher *RateRefresher
	archiver      *Archiver
	logger        *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates all
// background jobs.
func NewOrchestrator(
	payoutRunner *PayoutRunner,
	tokenSweeper *TokenSweeper,
	autoSettler *AutoSettler,
	rateRefresher *RateRefresher,
	archiver *Archiver,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		payoutRunner:  payoutRunner,
		tokenSweeper:  tokenSweeper,
		autoSettler:   autoSettler,
		rateRefresher: rateRefresher,
		archiver:      archiver,
		logger:        logger,
	}
}

// Run starts all jobs as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run
// returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("worker orchestrator starting")

	g, ctx := errgroup.WithContext(ctx)

	if o.payoutRunner != nil {
		g.Go(func() error {
			err := o.payoutRunner.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("payout runner: %w", err)
		})
	}

	if o.tokenSweeper != nil {
		g.Go(func() error {
			err := o.tokenSweeper.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("token sweeper: %w", err)
		})
	}

	if o.autoSettler != nil {
		g.Go(func() error {
			err := o.autoSettler.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("auto settler: %w", err)
		})
	}

	if o.rateRefresher != nil {
		g.Go(func() error {
			err := o.rateRefresher.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rate refresher: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, archiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("worker orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("worker orchestrator stopped cleanly")
	return nil
}
