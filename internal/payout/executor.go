package payout

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// payoutStream is the durable stream batch outcomes land on.
const payoutStream = "stream:payouts"

// BatchResult summarizes one executed batch.
type BatchResult struct {
	Paid    int
	Queued  int
	Failed  int
	Skipped int
}

// Executor runs a batch of pending payouts through their rails. Each
// payout is handled independently: a failure refunds the held ledger
// debit and never stops the rest of the batch. Re-running a batch is
// safe; anything no longer pending is skipped.
type Executor struct {
	registry *Registry
	payouts  domain.PayoutStore
	wallet   domain.WalletStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewExecutor creates the batch executor.
func NewExecutor(
	registry *Registry,
	payouts domain.PayoutStore,
	wallet domain.WalletStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		registry: registry,
		payouts:  payouts,
		wallet:   wallet,
		audit:    audit,
		bus:      bus,
		logger:   logger.With(slog.String("component", "payout_executor")),
	}
}

// ExecuteBatch processes items sequentially under the caller's batch
// lock and returns the tally.
func (e *Executor) ExecuteBatch(ctx context.Context, batchID string, items []domain.Payout) BatchResult {
	var res BatchResult
	for _, po := range items {
		if ctx.Err() != nil {
			res.Skipped += len(items) - res.Paid - res.Queued - res.Failed - res.Skipped
			break
		}
		switch e.processOne(ctx, batchID, po) {
		case outcomePaid:
			res.Paid++
		case outcomeQueued:
			res.Queued++
		case outcomeFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	e.logger.InfoContext(ctx, "payout batch finished",
		slog.String("batch_id", batchID),
		slog.Int("paid", res.Paid),
		slog.Int("queued", res.Queued),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
	)
	return res
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePaid
	outcomeQueued
	outcomeFailed
)

func (e *Executor) processOne(ctx context.Context, batchID string, po domain.Payout) outcome {
	log := e.logger.With(
		slog.String("payout_id", po.ID),
		slog.String("profile_id", po.ProfileID),
		slog.String("rail", string(po.Rail)),
	)

	if po.Status != domain.PayoutPending {
		log.Debug("payout not pending, skipping", slog.String("status", string(po.Status)))
		return outcomeSkipped
	}

	rail, err := e.registry.Get(po.Rail)
	if err != nil {
		e.fail(ctx, po, "rail not registered: "+err.Error(), log)
		return outcomeFailed
	}

	if err := e.payouts.UpdateStatus(ctx, po.ID, domain.PayoutProcessing, ""); err != nil {
		log.ErrorContext(ctx, "mark processing failed", slog.String("error", err.Error()))
		return outcomeSkipped
	}

	result, err := rail.Execute(ctx, po)
	if err != nil {
		e.fail(ctx, po, err.Error(), log)
		return outcomeFailed
	}

	if !result.Final {
		if err := e.payouts.SetProcessorRef(ctx, po.ID, result.Ref); err != nil {
			log.WarnContext(ctx, "processor ref not persisted", slog.String("error", err.Error()))
		}
		e.auditLog(ctx, "payout.queued_manual", po, map[string]any{"ref": result.Ref, "batch_id": batchID})
		log.InfoContext(ctx, "payout queued for manual processing", slog.String("ref", result.Ref))
		return outcomeQueued
	}

	paidAt := time.Now().UTC()
	if err := e.payouts.MarkPaid(ctx, po.ID, result.Ref, paidAt); err != nil {
		// The money already moved. Flag loudly rather than refund.
		log.ErrorContext(ctx, "transfer sent but mark paid failed",
			slog.String("ref", result.Ref),
			slog.String("error", err.Error()),
		)
		e.auditLog(ctx, "payout.mark_paid_failed", po, map[string]any{"ref": result.Ref})
		return outcomeFailed
	}

	e.auditLog(ctx, "payout.paid", po, map[string]any{
		"ref": result.Ref, "batch_id": batchID, "amount": po.Amount.String(),
	})
	e.publish(ctx, domain.Event{
		ID:        uuid.NewString(),
		Type:      domain.EventPayoutPaid,
		EntityID:  po.ID,
		ProfileID: po.ProfileID,
		Severity:  domain.SeverityInfo,
		Detail:    map[string]string{"amount": po.Amount.String(), "currency": po.Currency, "ref": result.Ref},
		CreatedAt: paidAt,
	})
	log.InfoContext(ctx, "payout paid", slog.String("ref", result.Ref))
	return outcomePaid
}

// fail marks the payout failed and returns the held funds to the
// ledger, so the professional can re-request.
func (e *Executor) fail(ctx context.Context, po domain.Payout, reason string, log *slog.Logger) {
	if err := e.payouts.UpdateStatus(ctx, po.ID, domain.PayoutFailed, reason); err != nil {
		log.ErrorContext(ctx, "mark failed errored", slog.String("error", err.Error()))
	}
	refund := domain.WalletTransaction{
		ID:        uuid.NewString(),
		ProfileID: po.ProfileID,
		Type:      domain.WalletCredit,
		Amount:    po.Amount,
		Currency:  po.Currency,
		Reference: "payout:" + po.ID,
		Note:      "refund after failed payout",
		CreatedAt: time.Now().UTC(),
	}
	if err := e.wallet.Insert(ctx, refund); err != nil {
		log.ErrorContext(ctx, "refund credit failed, ledger out of balance",
			slog.String("error", err.Error()),
		)
	}
	e.auditLog(ctx, "payout.failed", po, map[string]any{"reason": reason})
	e.publish(ctx, domain.Event{
		ID:        uuid.NewString(),
		Type:      domain.EventPayoutFailed,
		EntityID:  po.ID,
		ProfileID: po.ProfileID,
		Severity:  domain.SeverityCritical,
		Detail:    map[string]string{"reason": reason, "amount": po.Amount.String()},
		CreatedAt: time.Now().UTC(),
	})
	log.WarnContext(ctx, "payout failed", slog.String("reason", reason))
}

func (e *Executor) auditLog(ctx context.Context, event string, po domain.Payout, detail map[string]any) {
	if e.audit == nil {
		return
	}
	detail["payout_id"] = po.ID
	detail["profile_id"] = po.ProfileID
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit write failed", slog.String("error", err.Error()))
	}
}

func (e *Executor) publish(ctx context.Context, ev domain.Event) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, ev.Topic(), payload); err != nil {
		e.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
	}
	if err := e.bus.StreamAppend(ctx, payoutStream, payload); err != nil {
		e.logger.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
	}
}
