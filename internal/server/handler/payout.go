package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/server/middleware"
	"github.com/decodebeauty/decode-server/internal/service"
)

// PayoutHandler serves payout request and status endpoints.
type PayoutHandler struct {
	payouts *service.PayoutService
	logger  *slog.Logger
}

// NewPayoutHandler creates a PayoutHandler.
func NewPayoutHandler(payouts *service.PayoutService, logger *slog.Logger) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, logger: logger}
}

type payoutResponse struct {
	ID            string     `json:"id"`
	ProfileID     string     `json:"profile_id"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Rail          string     `json:"rail"`
	Destination   string     `json:"destination"`
	Status        string     `json:"status"`
	UnlockState   string     `json:"unlock_state"`
	BatchID       *string    `json:"batch_id,omitempty"`
	ProcessorRef  string     `json:"processor_ref,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	RequestedAt   time.Time  `json:"requested_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

func toPayoutResponse(p domain.Payout) payoutResponse {
	return payoutResponse{
		ID:            p.ID,
		ProfileID:     p.ProfileID,
		Amount:        p.Amount.String(),
		Currency:      p.Currency,
		Rail:          string(p.Rail),
		Destination:   p.Destination,
		Status:        string(p.Status),
		UnlockState:   string(p.UnlockState),
		BatchID:       p.BatchID,
		ProcessorRef:  p.ProcessorRef,
		FailureReason: p.FailureReason,
		RequestedAt:   p.RequestedAt,
		PaidAt:        p.PaidAt,
	}
}

// RequestPayout creates a payout request for the authenticated
// professional's available balance.
// POST /api/payouts
func (h *PayoutHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Rail     string `json:"rail"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if req.Currency == "" {
		req.Currency = "AED"
	}

	p, err := h.payouts.RequestPayout(r.Context(), profileID, amount, req.Currency, domain.PayoutRail(req.Rail))
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: payout request rejected",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayoutResponse(p))
}

// GetPayout returns a single payout. Owners and admins only.
// GET /api/payouts/{id}
func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing payout id")
		return
	}
	p, err := h.payouts.GetPayout(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if p.ProfileID != profileID && middleware.Role(r.Context()) != string(domain.RoleAdmin) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, toPayoutResponse(p))
}

// ListPayouts pages the authenticated profile's payout history.
// GET /api/payouts
func (h *PayoutHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	payouts, err := h.payouts.ListPayouts(r.Context(), profileID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		out = append(out, toPayoutResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"payouts": out})
}

// CancelPayout cancels a still-pending payout and releases the held
// funds back to the wallet.
// POST /api/payouts/{id}/cancel
func (h *PayoutHandler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing payout id")
		return
	}
	p, err := h.payouts.GetPayout(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if p.ProfileID != profileID && middleware.Role(r.Context()) != string(domain.RoleAdmin) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.payouts.CancelPayout(r.Context(), id); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: cancel payout failed",
			slog.String("payout_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
