package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/crypto"
	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/payout"
)

// PayoutAuthSigner signs crypto payout authorizations with the
// treasury key. Implemented by crypto.Treasury.
type PayoutAuthSigner interface {
	SignPayoutAuth(p crypto.PayoutAuthPayload) (string, error)
}

// PayoutService owns withdrawal requests and the weekly batch: the
// unlock gate check, balance hold, rail destination snapshot, and the
// handoff to the executor.
type PayoutService struct {
	payouts   domain.PayoutStore
	profiles  domain.ProfileStore
	auctions  domain.AuctionStore
	videos    domain.VideoTokenStore
	wallet    domain.WalletStore
	registry  *payout.Registry
	executor  *payout.Executor
	signer    PayoutAuthSigner
	locks     domain.LockManager
	minAmount decimal.Decimal
	batchSize int
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewPayoutService creates a PayoutService with all required dependencies.
// signer may be nil when the crypto rail is not configured.
func NewPayoutService(
	payouts domain.PayoutStore,
	profiles domain.ProfileStore,
	auctions domain.AuctionStore,
	videos domain.VideoTokenStore,
	wallet domain.WalletStore,
	registry *payout.Registry,
	executor *payout.Executor,
	signer PayoutAuthSigner,
	locks domain.LockManager,
	minAmount decimal.Decimal,
	batchSize int,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PayoutService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &PayoutService{
		payouts:   payouts,
		profiles:  profiles,
		auctions:  auctions,
		videos:    videos,
		wallet:    wallet,
		registry:  registry,
		executor:  executor,
		signer:    signer,
		locks:     locks,
		minAmount: minAmount,
		batchSize: batchSize,
		bus:       bus,
		audit:     audit,
		logger:    logger.With(slog.String("component", "payout_service")),
	}
}

// RequestPayout opens a withdrawal for a professional. Under a
// per-professional lock it checks the minimum, the unlock gate across
// the profile's video-gated settlements, and the available balance,
// then debits the hold and persists the pending payout. The gate's
// locked states refuse the request; expired windows stay locked
// pending manual resolution.
func (s *PayoutService) RequestPayout(ctx context.Context, profileID string, amount decimal.Decimal, currency string, rail domain.PayoutRail) (domain.Payout, error) {
	unlock, err := s.locks.Acquire(ctx, "payout:"+profileID, 30*time.Second)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("payout_service: payout lock %q: %w", profileID, err)
	}
	defer unlock()

	amount = amount.Round(2)
	if amount.LessThan(s.minAmount) || !amount.IsPositive() {
		return domain.Payout{}, fmt.Errorf("payout_service: amount %s below minimum %s: %w", amount, s.minAmount, domain.ErrInvalidAmount)
	}

	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("payout_service: profile %q: %w", profileID, err)
	}
	if rail == "" {
		rail = profile.PreferredRail
	}
	r, err := s.registry.Get(rail)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("payout_service: rail %q: %w", rail, err)
	}
	destination, err := r.Destination(profile)
	if err != nil {
		return domain.Payout{}, err
	}

	state, err := s.unlockStateFor(ctx, profileID)
	if err != nil {
		return domain.Payout{}, err
	}
	if !state.Unlocked() {
		return domain.Payout{}, fmt.Errorf("payout_service: earnings are %s: %w", state, domain.ErrPayoutLocked)
	}

	balance, err := s.wallet.Balance(ctx, profileID, currency)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("payout_service: balance %q: %w", profileID, err)
	}
	if balance.LessThan(amount) {
		return domain.Payout{}, fmt.Errorf("payout_service: balance %s below requested %s: %w", balance, amount, domain.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	po := domain.Payout{
		ID:          uuid.NewString(),
		ProfileID:   profileID,
		Amount:      amount,
		Currency:    currency,
		Rail:        rail,
		Destination: destination,
		Status:      domain.PayoutPending,
		UnlockState: state,
		RequestedAt: now,
		UpdatedAt:   now,
	}

	if rail == domain.RailCrypto && s.signer != nil {
		sig, err := s.signer.SignPayoutAuth(crypto.PayoutAuthPayload{
			PayoutID:    po.ID,
			Recipient:   destination,
			AmountMinor: amount.Shift(2).IntPart(),
			Currency:    currency,
			Timestamp:   now.Unix(),
		})
		if err != nil {
			return domain.Payout{}, fmt.Errorf("payout_service: sign payout auth: %w", err)
		}
		po.AuthSignature = sig
	}

	if err := s.payouts.Create(ctx, po); err != nil {
		return domain.Payout{}, fmt.Errorf("payout_service: create payout: %w", err)
	}

	// Hold the funds so a concurrent request cannot double-spend.
	hold := domain.WalletTransaction{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Type:      domain.WalletDebit,
		Amount:    amount,
		Currency:  currency,
		Reference: "payout:" + po.ID,
		Note:      "payout hold",
		CreatedAt: now,
	}
	if err := s.wallet.Insert(ctx, hold); err != nil {
		// Without the hold the payout must not run.
		if updErr := s.payouts.UpdateStatus(ctx, po.ID, domain.PayoutFailed, "hold debit failed"); updErr != nil {
			s.logger.ErrorContext(ctx, "payout fail-mark after hold error failed",
				slog.String("payout_id", po.ID),
				slog.String("error", updErr.Error()),
			)
		}
		return domain.Payout{}, fmt.Errorf("payout_service: hold debit: %w", err)
	}

	s.auditLog(ctx, "payout.requested", map[string]any{
		"payout_id":  po.ID,
		"profile_id": profileID,
		"amount":     amount.String(),
		"currency":   currency,
		"rail":       string(rail),
	})
	s.publish(ctx, domain.Event{
		ID:        uuid.NewString(),
		Type:      domain.EventPayoutRequested,
		EntityID:  po.ID,
		ProfileID: profileID,
		Severity:  domain.SeverityInfo,
		Detail:    map[string]string{"amount": amount.String(), "currency": currency, "rail": string(rail)},
		CreatedAt: now,
	})
	s.logger.InfoContext(ctx, "payout requested",
		slog.String("payout_id", po.ID),
		slog.String("profile_id", profileID),
		slog.String("amount", amount.String()),
		slog.String("rail", string(rail)),
	)
	return po, nil
}

// unlockStateFor folds the profile's video-gated settlements into one
// state: the first locked classification wins; with none, the request
// is clear.
func (s *PayoutService) unlockStateFor(ctx context.Context, profileID string) (domain.UnlockState, error) {
	auctions, err := s.auctions.ListByProfile(ctx, profileID, domain.ListOpts{Limit: 100})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("payout_service: auctions for %q: %w", profileID, err)
	}

	now := time.Now().UTC()
	state := domain.StateNoVideoRequired
	for _, a := range auctions {
		if a.Status != domain.AuctionSettled || !a.RequiresVideo {
			continue
		}
		var tok *domain.VideoToken
		if t, err := s.videos.GetByAuction(ctx, a.ID); err == nil {
			tok = &t
		} else if !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("payout_service: video token for %q: %w", a.ID, err)
		}
		st := payout.Classify(payout.InputFor(a, tok, now))
		if !st.Unlocked() {
			return st, nil
		}
		state = st
	}
	return state, nil
}

// GetPayout retrieves a single payout.
func (s *PayoutService) GetPayout(ctx context.Context, id string) (domain.Payout, error) {
	po, err := s.payouts.GetByID(ctx, id)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("payout_service: get payout %q: %w", id, err)
	}
	return po, nil
}

// ListPayouts pages a professional's payouts.
func (s *PayoutService) ListPayouts(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.Payout, error) {
	payouts, err := s.payouts.ListByProfile(ctx, profileID, opts)
	if err != nil {
		return nil, fmt.Errorf("payout_service: list payouts for %q: %w", profileID, err)
	}
	return payouts, nil
}

// CancelPayout withdraws a still-pending request and releases the
// hold. Anything past pending is already moving money.
func (s *PayoutService) CancelPayout(ctx context.Context, id string) error {
	po, err := s.payouts.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("payout_service: get payout %q: %w", id, err)
	}
	if po.Status != domain.PayoutPending {
		return fmt.Errorf("payout_service: payout %q is %s: %w", id, po.Status, domain.ErrConflict)
	}
	if err := s.payouts.UpdateStatus(ctx, id, domain.PayoutCancelled, ""); err != nil {
		return fmt.Errorf("payout_service: cancel payout %q: %w", id, err)
	}

	release := domain.WalletTransaction{
		ID:        uuid.NewString(),
		ProfileID: po.ProfileID,
		Type:      domain.WalletCredit,
		Amount:    po.Amount,
		Currency:  po.Currency,
		Reference: "payout:" + po.ID,
		Note:      "hold released on cancel",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.wallet.Insert(ctx, release); err != nil {
		s.logger.ErrorContext(ctx, "hold release failed, ledger out of balance",
			slog.String("payout_id", po.ID),
			slog.String("error", err.Error()),
		)
	}
	s.auditLog(ctx, "payout.cancelled", map[string]any{"payout_id": id})
	return nil
}

// RunBatch executes the weekly payout batch: pending payouts are
// re-gated, grouped under a batch ID, and run through their rails by
// the executor. The batch lock makes the cron endpoint and the worker
// loop mutually exclusive.
func (s *PayoutService) RunBatch(ctx context.Context) (payout.BatchResult, error) {
	unlock, err := s.locks.Acquire(ctx, "payout_batch", 10*time.Minute)
	if err != nil {
		return payout.BatchResult{}, fmt.Errorf("payout_service: batch lock: %w", err)
	}
	defer unlock()

	pending, err := s.payouts.ListPending(ctx, s.batchSize)
	if err != nil {
		return payout.BatchResult{}, fmt.Errorf("payout_service: list pending: %w", err)
	}
	if len(pending) == 0 {
		return payout.BatchResult{}, nil
	}

	// Re-check the gate at execution time: a window can expire between
	// request and batch.
	eligible := make([]domain.Payout, 0, len(pending))
	ids := make([]string, 0, len(pending))
	for _, po := range pending {
		state, gateErr := s.unlockStateFor(ctx, po.ProfileID)
		if gateErr != nil {
			s.logger.WarnContext(ctx, "gate re-check failed, payout skipped",
				slog.String("payout_id", po.ID),
				slog.String("error", gateErr.Error()),
			)
			continue
		}
		if !state.Unlocked() {
			if err := s.payouts.SetUnlockState(ctx, po.ID, state); err != nil {
				s.logger.WarnContext(ctx, "unlock state update failed",
					slog.String("payout_id", po.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		eligible = append(eligible, po)
		ids = append(ids, po.ID)
	}
	if len(eligible) == 0 {
		return payout.BatchResult{}, nil
	}

	batchID := uuid.NewString()
	if err := s.payouts.AssignBatch(ctx, ids, batchID); err != nil {
		return payout.BatchResult{}, fmt.Errorf("payout_service: assign batch: %w", err)
	}

	result := s.executor.ExecuteBatch(ctx, batchID, eligible)

	s.auditLog(ctx, "payout.batch_finished", map[string]any{
		"batch_id": batchID,
		"paid":     result.Paid,
		"queued":   result.Queued,
		"failed":   result.Failed,
		"skipped":  result.Skipped,
	})
	return result, nil
}

func (s *PayoutService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", slog.String("error", err.Error()))
	}
}

func (s *PayoutService) publish(ctx context.Context, ev domain.Event) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ev.Topic(), payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
	}
}
