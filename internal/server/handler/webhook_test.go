package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// stubWebhooks returns a fixed error from every processing call and
// counts deliveries per route.
type stubWebhooks struct {
	err      error
	received int
}

func (s *stubWebhooks) HandleStripe(ctx context.Context, payload []byte, signature string) error {
	s.received++
	return s.err
}

func (s *stubWebhooks) HandleStripeConnect(ctx context.Context, payload []byte, signature string) error {
	s.received++
	return s.err
}

func (s *stubWebhooks) HandleCrossmint(ctx context.Context, payload []byte, signature string) error {
	s.received++
	return s.err
}

func (s *stubWebhooks) ReplayUnprocessed(ctx context.Context, limit int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return 3, nil
}

func newWebhookHandler(err error) (*WebhookHandler, *stubWebhooks) {
	stub := &stubWebhooks{err: err}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWebhookHandler(stub, logger), stub
}

func postWebhook(t *testing.T, h http.HandlerFunc, sigHeader, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe",
		strings.NewReader(`{"id":"evt_1","type":"payment_intent.succeeded"}`))
	if signature != "" {
		req.Header.Set(sigHeader, signature)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestWebhookDeliveryAcked(t *testing.T) {
	h, stub := newWebhookHandler(nil)

	rec := postWebhook(t, h.Stripe, "Stripe-Signature", "t=1,v1=abc")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "received")
	require.Equal(t, 1, stub.received)
}

func TestWebhookReplayedDeliveryAckedAgain(t *testing.T) {
	// The service absorbs duplicate provider event ids and returns nil,
	// so a redelivery must be acknowledged, not rejected.
	h, stub := newWebhookHandler(nil)

	first := postWebhook(t, h.Stripe, "Stripe-Signature", "t=1,v1=abc")
	second := postWebhook(t, h.Stripe, "Stripe-Signature", "t=1,v1=abc")
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, 2, stub.received)
}

func TestWebhookUnknownEventRejectedAsBadRequest(t *testing.T) {
	h, _ := newWebhookHandler(domain.ErrUnknownEvent)

	rec := postWebhook(t, h.Stripe, "Stripe-Signature", "t=1,v1=abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unhandled event type")
}

func TestWebhookBadSignatureUnauthorized(t *testing.T) {
	h, _ := newWebhookHandler(domain.ErrBadSignature)

	rec := postWebhook(t, h.Crossmint, "X-Crossmint-Signature", "deadbeef")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookMissingSignatureUnauthorized(t *testing.T) {
	h, stub := newWebhookHandler(nil)

	rec := postWebhook(t, h.Stripe, "Stripe-Signature", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, stub.received, "unsigned request must not reach the service")
}

func TestWebhookProcessingFailureIsServerError(t *testing.T) {
	h, _ := newWebhookHandler(io.ErrUnexpectedEOF)

	rec := postWebhook(t, h.StripeConnect, "Stripe-Signature", "t=1,v1=abc")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookReplayEndpoint(t *testing.T) {
	h, _ := newWebhookHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/replay", nil)
	rec := httptest.NewRecorder()
	h.Replay(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"replayed":3}`, rec.Body.String())
}

func TestWriteDomainErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"bad signature", domain.ErrBadSignature, http.StatusUnauthorized},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"conflict", domain.ErrConflict, http.StatusConflict},
		{"duplicate event", domain.ErrDuplicateEvent, http.StatusConflict},
		{"invalid amount", domain.ErrInvalidAmount, http.StatusBadRequest},
		{"unknown event", domain.ErrUnknownEvent, http.StatusBadRequest},
		{"payout locked", domain.ErrPayoutLocked, http.StatusUnprocessableEntity},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{"rate mismatch", domain.ErrRateMismatch, http.StatusUnprocessableEntity},
		{"opaque", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tc.err)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}
