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

// WalletHandler serves wallet statement and balance endpoints.
type WalletHandler struct {
	wallet *service.WalletService
	logger *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallet *service.WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallet: wallet, logger: logger}
}

type ledgerEntryResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Reference string    `json:"reference"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func currencyParam(r *http.Request) string {
	if c := r.URL.Query().Get("currency"); c != "" {
		return c
	}
	return "AED"
}

// GetStatement returns the authenticated profile's ledger entries and
// derived balance in one currency.
// GET /api/wallet
func (h *WalletHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	stmt, err := h.wallet.GetStatement(r.Context(), profileID, currencyParam(r), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: wallet statement failed",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	entries := make([]ledgerEntryResponse, 0, len(stmt.Entries))
	for _, e := range stmt.Entries {
		entries = append(entries, ledgerEntryResponse{
			ID:        e.ID,
			Type:      string(e.Type),
			Amount:    e.Amount.String(),
			Currency:  e.Currency,
			Reference: e.Reference,
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  entries,
		"balance":  stmt.Balance.String(),
		"currency": stmt.Currency,
	})
}

// GetBalance returns just the derived balance.
// GET /api/wallet/balance
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	currency := currencyParam(r)
	balance, err := h.wallet.Balance(r.Context(), profileID, currency)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"balance":  balance.String(),
		"currency": currency,
	})
}

// Adjust appends a manual correction entry. Admin only.
// POST /api/wallet/adjustments
func (h *WalletHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	if middleware.Role(r.Context()) != string(domain.RoleAdmin) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req struct {
		ProfileID string `json:"profile_id"`
		Type      string `json:"type"`
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
		Note      string `json:"note"`
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
	entryType := domain.WalletEntryType(req.Type)
	if entryType != domain.WalletCredit && entryType != domain.WalletDebit {
		writeError(w, http.StatusBadRequest, "type must be credit or debit")
		return
	}
	if req.Currency == "" {
		req.Currency = "AED"
	}

	entry := domain.WalletTransaction{
		ProfileID: req.ProfileID,
		Type:      entryType,
		Amount:    amount,
		Currency:  req.Currency,
		Note:      req.Note,
	}
	if err := h.wallet.Adjust(r.Context(), entry); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: wallet adjustment failed",
			slog.String("profile_id", req.ProfileID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}
