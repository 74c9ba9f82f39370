package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/fees"
	"github.com/decodebeauty/decode-server/internal/server/middleware"
	"github.com/decodebeauty/decode-server/internal/service"
)

// PaymentHandler serves payment links and payment creation endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
	logger   *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

type createLinkRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Amount      string  `json:"amount"`
	Currency    string  `json:"currency"`
	FeeChannel  string  `json:"fee_channel"`
	ExpiresAt   *string `json:"expires_at"`
}

type linkResponse struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	FeeChannel  string     `json:"fee_channel"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toLinkResponse(l domain.PaymentLink) linkResponse {
	return linkResponse{
		ID:          l.ID,
		Slug:        l.Slug,
		Title:       l.Title,
		Description: l.Description,
		Amount:      l.Amount.String(),
		Currency:    l.Currency,
		FeeChannel:  string(l.FeeChannel),
		Status:      string(l.Status),
		ExpiresAt:   l.ExpiresAt,
		CreatedAt:   l.CreatedAt,
	}
}

// CreateLink creates a payment link for the authenticated professional.
// POST /api/payment-links
func (h *PaymentHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createLinkRequest
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

	link := domain.PaymentLink{
		ProfileID:   profileID,
		Title:       req.Title,
		Description: req.Description,
		Amount:      amount,
		Currency:    req.Currency,
		FeeChannel:  domain.FeeChannel(req.FeeChannel),
	}
	if req.ExpiresAt != nil {
		exp, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid expires_at")
			return
		}
		link.ExpiresAt = &exp
	}

	created, err := h.payments.CreateLink(r.Context(), link)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create link failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLinkResponse(created))
}

// ListLinks pages the authenticated professional's payment links.
// GET /api/payment-links
func (h *PaymentHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	links, err := h.payments.ListLinks(r.Context(), profileID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list links failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, toLinkResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": out})
}

type openLinkResponse struct {
	Link      linkResponse   `json:"link"`
	Breakdown fees.Breakdown `json:"breakdown"`
}

// OpenLink is the public payer view of a payment link, fee included.
// GET /api/payment-links/{slug}
func (h *PaymentHandler) OpenLink(w http.ResponseWriter, r *http.Request) {
	slug := pathParam(r, "slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing slug")
		return
	}
	link, breakdown, err := h.payments.OpenLink(r.Context(), slug)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, openLinkResponse{Link: toLinkResponse(link), Breakdown: breakdown})
}

type createPaymentRequest struct {
	Slug         string `json:"slug"`
	SuccessURL   string `json:"success_url,omitempty"`
	CancelURL    string `json:"cancel_url,omitempty"`
	ReceiptEmail string `json:"receipt_email,omitempty"`
}

// CreateIntent opens a Stripe PaymentIntent for a link.
// POST /api/payments/intent
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Slug == "" {
		writeError(w, http.StatusBadRequest, "slug is required")
		return
	}

	tx, intent, err := h.payments.CreateIntent(r.Context(), req.Slug, payerID(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create intent failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"transaction_id": tx.ID,
		"client_secret":  intent.ClientSecret,
		"gross_amount":   tx.GrossAmount.String(),
		"fee_amount":     tx.FeeAmount.String(),
		"currency":       tx.Currency,
	})
}

// CreateCheckoutSession opens a hosted Stripe Checkout for a link.
// POST /api/payments/checkout-session
func (h *PaymentHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Slug == "" || req.SuccessURL == "" || req.CancelURL == "" {
		writeError(w, http.StatusBadRequest, "slug, success_url and cancel_url are required")
		return
	}

	tx, session, err := h.payments.CreateCheckoutSession(r.Context(), req.Slug, payerID(r), req.SuccessURL, req.CancelURL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create checkout failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"transaction_id": tx.ID,
		"checkout_url":   session.URL,
		"gross_amount":   tx.GrossAmount.String(),
		"currency":       tx.Currency,
	})
}

// CreateCrossmintOrder opens a Crossmint crypto order for a link.
// POST /api/payments/crossmint-order
func (h *PaymentHandler) CreateCrossmintOrder(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Slug == "" {
		writeError(w, http.StatusBadRequest, "slug is required")
		return
	}

	tx, order, err := h.payments.CreateCrossmintOrder(r.Context(), req.Slug, payerID(r), req.ReceiptEmail)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create crossmint order failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"transaction_id": tx.ID,
		"order_id":       order.OrderID,
		"client_secret":  order.ClientSecret,
		"gross_amount":   tx.GrossAmount.String(),
		"currency":       tx.Currency,
	})
}

// ManualComplete marks a transaction paid by offline settlement.
// POST /api/payments/manual-complete
func (h *PaymentHandler) ManualComplete(w http.ResponseWriter, r *http.Request) {
	if middleware.Role(r.Context()) != string(domain.RoleAdmin) {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}

	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := readJSON(r, &req); err != nil || req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}

	tx, err := h.payments.ManualComplete(r.Context(), req.TransactionID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: manual complete failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": tx.ID,
		"status":         string(tx.Status),
	})
}

type updateTransactionRequest struct {
	Status   string            `json:"status,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// UpdateTransaction applies a constrained status/metadata update.
// PATCH /api/payments/{id}
func (h *PaymentHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing transaction id")
		return
	}

	existing, err := h.payments.GetTransaction(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if existing.ProfileID != profileID && middleware.Role(r.Context()) != string(domain.RoleAdmin) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req updateTransactionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	tx, err := h.payments.UpdateTransaction(r.Context(), id, domain.TransactionStatus(req.Status), req.Metadata)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: update transaction failed",
			slog.String("transaction_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": tx.ID,
		"status":         string(tx.Status),
		"metadata":       tx.Metadata,
	})
}

// ListTransactions pages the authenticated professional's transactions.
// GET /api/payments
func (h *PaymentHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	txs, err := h.payments.ListTransactions(r.Context(), profileID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

type transactionResponse struct {
	ID            string     `json:"id"`
	LinkID        *string    `json:"link_id,omitempty"`
	AuctionID     *string    `json:"auction_id,omitempty"`
	Processor     string     `json:"processor"`
	ProcessorRef  string     `json:"processor_ref,omitempty"`
	Currency      string     `json:"currency"`
	GrossAmount   string     `json:"gross_amount"`
	FeeAmount     string     `json:"fee_amount"`
	NetAmount     string     `json:"net_amount"`
	FeePercent    string     `json:"fee_percentage"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SucceededAt   *time.Time `json:"succeeded_at,omitempty"`
}

func toTransactionResponse(tx domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:            tx.ID,
		LinkID:        tx.LinkID,
		AuctionID:     tx.AuctionID,
		Processor:     string(tx.Processor),
		ProcessorRef:  tx.ProcessorRef,
		Currency:      tx.Currency,
		GrossAmount:   tx.GrossAmount.String(),
		FeeAmount:     tx.FeeAmount.String(),
		NetAmount:     tx.NetAmount.String(),
		FeePercent:    tx.FeePercent.String(),
		Status:        string(tx.Status),
		FailureReason: tx.FailureReason,
		CreatedAt:     tx.CreatedAt,
		SucceededAt:   tx.SucceededAt,
	}
}

// payerID returns the authenticated profile as the payer, nil for
// anonymous link payments.
func payerID(r *http.Request) *string {
	if id, ok := middleware.ProfileID(r.Context()); ok {
		return &id
	}
	return nil
}
