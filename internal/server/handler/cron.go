package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/decodebeauty/decode-server/internal/service"
)

// CronHandler exposes the scheduled jobs as service-key endpoints so an
// external scheduler can drive them alongside the built-in workers.
// Every job is idempotent; double-firing is harmless.
type CronHandler struct {
	payouts  *service.PayoutService
	videos   *service.VideoService
	auctions *service.AuctionService
	payments *service.PaymentService
	rates    *service.RateService
	logger   *slog.Logger
}

// NewCronHandler creates a CronHandler.
func NewCronHandler(
	payouts *service.PayoutService,
	videos *service.VideoService,
	auctions *service.AuctionService,
	payments *service.PaymentService,
	rates *service.RateService,
	logger *slog.Logger,
) *CronHandler {
	return &CronHandler{
		payouts:  payouts,
		videos:   videos,
		auctions: auctions,
		payments: payments,
		rates:    rates,
		logger:   logger,
	}
}

// WeeklyPayouts runs the pending payout batch.
// POST /api/cron/weekly-payouts
func (h *CronHandler) WeeklyPayouts(w http.ResponseWriter, r *http.Request) {
	result, err := h.payouts.RunBatch(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "cron: payout batch failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"paid":    result.Paid,
		"queued":  result.Queued,
		"failed":  result.Failed,
		"skipped": result.Skipped,
	})
}

// SweepTokens expires overdue video tokens and locks their payouts.
// POST /api/cron/sweep-tokens
func (h *CronHandler) SweepTokens(w http.ResponseWriter, r *http.Request) {
	swept, err := h.videos.SweepOverdue(r.Context(), time.Now().UTC(), 200)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "cron: token sweep failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"swept": swept})
}

// SettleAuctions settles auctions past their end time.
// POST /api/cron/settle-auctions
func (h *CronHandler) SettleAuctions(w http.ResponseWriter, r *http.Request) {
	settled, err := h.auctions.SettleDue(r.Context(), time.Now().UTC(), 100)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "cron: auction settle failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"settled": settled})
}

// ExpireLinks marks payment links past their expiry.
// POST /api/cron/expire-links
func (h *CronHandler) ExpireLinks(w http.ResponseWriter, r *http.Request) {
	expired, err := h.payments.ExpireDueLinks(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "cron: link expiry failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"expired": expired})
}

// RefreshRates bumps the exchange-rate snapshot version.
// POST /api/cron/refresh-rates
func (h *CronHandler) RefreshRates(w http.ResponseWriter, r *http.Request) {
	if err := h.rates.Refresh(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "cron: rate refresh failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
