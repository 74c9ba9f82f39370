package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/decodebeauty/decode-server/internal/domain"
)

const maxWebhookBody = 1 << 20 // Stripe caps event payloads well under this

// webhookProcessor is the slice of the webhook service these routes use.
type webhookProcessor interface {
	HandleStripe(ctx context.Context, payload []byte, signature string) error
	HandleStripeConnect(ctx context.Context, payload []byte, signature string) error
	HandleCrossmint(ctx context.Context, payload []byte, signature string) error
	ReplayUnprocessed(ctx context.Context, limit int) (int, error)
}

// WebhookHandler receives processor callbacks. These routes carry no
// session auth; the signature header is the credential and the service
// verifies it before parsing anything else.
type WebhookHandler struct {
	webhooks webhookProcessor
	logger   *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(webhooks webhookProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

// Stripe receives platform-account events.
// POST /api/webhooks/stripe
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "Stripe-Signature", h.webhooks.HandleStripe)
}

// StripeConnect receives connected-account events.
// POST /api/webhooks/stripe-connect
func (h *WebhookHandler) StripeConnect(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "Stripe-Signature", h.webhooks.HandleStripeConnect)
}

// Crossmint receives crypto order events.
// POST /api/webhooks/crossmint
func (h *WebhookHandler) Crossmint(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "X-Crossmint-Signature", h.webhooks.HandleCrossmint)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, sigHeader string, process func(ctx context.Context, payload []byte, signature string) error) {
	signature := r.Header.Get(sigHeader)
	if signature == "" {
		writeError(w, http.StatusUnauthorized, "missing signature")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	err = process(r.Context(), payload, signature)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	case errors.Is(err, domain.ErrBadSignature):
		h.logger.WarnContext(r.Context(), "handler: webhook signature rejected",
			slog.String("header", sigHeader),
		)
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, domain.ErrUnknownEvent):
		// Malformed or unrecognized envelope. Recorded by the service;
		// rejected here as a client error.
		writeError(w, http.StatusBadRequest, "unhandled event type")
	default:
		h.logger.ErrorContext(r.Context(), "handler: webhook processing failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "processing failed")
	}
}

// Replay reprocesses stored events that never finished. Service key
// required.
// POST /api/webhooks/replay
func (h *WebhookHandler) Replay(w http.ResponseWriter, r *http.Request) {
	replayed, err := h.webhooks.ReplayUnprocessed(r.Context(), 100)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: webhook replay failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"replayed": replayed})
}
