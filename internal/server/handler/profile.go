package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/server/middleware"
	"github.com/decodebeauty/decode-server/internal/service"
)

// ProfileHandler serves profile, verification, and Stripe Connect
// onboarding endpoints.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

type profileResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Phone         string `json:"phone,omitempty"`
	PhoneVerified bool   `json:"phone_verified"`
	DisplayName   string `json:"display_name"`
	Role          string `json:"role"`
	Onboarded     bool   `json:"stripe_onboarded"`
	PreferredRail string `json:"preferred_rail,omitempty"`
}

func toProfileResponse(p domain.Profile) profileResponse {
	return profileResponse{
		ID:            p.ID,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		Phone:         p.Phone,
		PhoneVerified: p.PhoneVerified,
		DisplayName:   p.DisplayName,
		Role:          string(p.Role),
		Onboarded:     p.StripeAccountID != "",
		PreferredRail: string(p.PreferredRail),
	}
}

// GetProfile returns the authenticated profile.
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	p, err := h.profiles.GetProfile(r.Context(), profileID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// UpdateProfile edits the authenticated profile's contact details.
// Changing email or phone resets that channel's verified flag.
// PATCH /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Email         *string `json:"email"`
		Phone         *string `json:"phone"`
		DisplayName   *string `json:"display_name"`
		PreferredRail *string `json:"preferred_rail"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	current, err := h.profiles.GetProfile(r.Context(), profileID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Email != nil {
		current.Email = *req.Email
	}
	if req.Phone != nil {
		current.Phone = *req.Phone
	}
	if req.DisplayName != nil {
		current.DisplayName = *req.DisplayName
	}
	if req.PreferredRail != nil {
		current.PreferredRail = domain.PayoutRail(*req.PreferredRail)
	}

	updated, err := h.profiles.UpdateProfile(r.Context(), current)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: profile update failed",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(updated))
}

// StartEmailVerification sends an email OTP.
// POST /api/profile/verify-email
func (h *ProfileHandler) StartEmailVerification(w http.ResponseWriter, r *http.Request) {
	h.startVerification(w, r, h.profiles.StartEmailVerification)
}

// ConfirmEmail checks an email OTP.
// POST /api/profile/verify-email/confirm
func (h *ProfileHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.profiles.ConfirmEmail)
}

// StartPhoneVerification sends a WhatsApp OTP.
// POST /api/profile/verify-phone
func (h *ProfileHandler) StartPhoneVerification(w http.ResponseWriter, r *http.Request) {
	h.startVerification(w, r, h.profiles.StartPhoneVerification)
}

// ConfirmPhone checks a WhatsApp OTP.
// POST /api/profile/verify-phone/confirm
func (h *ProfileHandler) ConfirmPhone(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, h.profiles.ConfirmPhone)
}

func (h *ProfileHandler) startVerification(w http.ResponseWriter, r *http.Request, start func(ctx context.Context, profileID string) error) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := start(r.Context(), profileID); err != nil {
		h.logger.WarnContext(r.Context(), "handler: verification start failed",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *ProfileHandler) confirm(w http.ResponseWriter, r *http.Request, confirm func(ctx context.Context, profileID, code string) error) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := confirm(r.Context(), profileID, req.Code); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// CreateConnectAccount provisions a Stripe Express account for the
// authenticated professional.
// POST /api/profile/connect-account
func (h *ProfileHandler) CreateConnectAccount(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Country string `json:"country"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	account, err := h.profiles.CreateConnectAccount(r.Context(), profileID, req.Country)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: connect account failed",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"account_id":        account.ID,
		"charges_enabled":   account.ChargesEnabled,
		"payouts_enabled":   account.PayoutsEnabled,
		"details_submitted": account.DetailsSubmitted,
	})
}

// CreateAccountSession mints a client secret for embedded onboarding.
// POST /api/profile/account-session
func (h *ProfileHandler) CreateAccountSession(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	session, err := h.profiles.CreateAccountSession(r.Context(), profileID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"client_secret": session.ClientSecret})
}

// CreateTransfer moves platform funds to a profile's connected
// account. Admin only.
// POST /api/stripe/transfers
func (h *ProfileHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	if middleware.Role(r.Context()) != string(domain.RoleAdmin) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		ProfileID string `json:"profile_id"`
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
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
	transferID, err := h.profiles.ManualTransfer(r.Context(), req.ProfileID, amount, req.Currency)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: manual transfer failed",
			slog.String("profile_id", req.ProfileID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"transfer_id": transferID})
}

// AccountBalance reads the connected account's Stripe balance.
// GET /api/profile/account-balance
func (h *ProfileHandler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	balance, err := h.profiles.AccountBalance(r.Context(), profileID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	available := make(map[string]string, len(balance.Available))
	for cur, amt := range balance.Available {
		available[cur] = amt.String()
	}
	pending := make(map[string]string, len(balance.Pending))
	for cur, amt := range balance.Pending {
		pending[cur] = amt.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": available,
		"pending":   pending,
	})
}
