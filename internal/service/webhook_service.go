package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// SignatureVerifier checks an inbound webhook signature against the
// raw body. Implemented by crypto.StripeVerifier and
// crypto.CrossmintVerifier.
type SignatureVerifier interface {
	Verify(payload []byte, signature string) error
}

// WebhookService ingests processor webhooks: signature check, replay
// dedup, and a tagged-union parse that hands only fully typed variants
// to the payment flow. Anything unverifiable or unrecognized is
// recorded and rejected; half-parsed payloads never cross this
// boundary.
type WebhookService struct {
	events    domain.WebhookEventStore
	payments  *PaymentService
	profiles  domain.ProfileStore
	stripe    SignatureVerifier
	connect   SignatureVerifier
	crossmint SignatureVerifier
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewWebhookService creates a WebhookService with all required dependencies.
func NewWebhookService(
	events domain.WebhookEventStore,
	payments *PaymentService,
	profiles domain.ProfileStore,
	stripeVerifier, connectVerifier, crossmintVerifier SignatureVerifier,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		events:    events,
		payments:  payments,
		profiles:  profiles,
		stripe:    stripeVerifier,
		connect:   connectVerifier,
		crossmint: crossmintVerifier,
		bus:       bus,
		audit:     audit,
		logger:    logger.With(slog.String("component", "webhook_service")),
	}
}

// stripeEnvelope is the outer Stripe event shape. Type is the
// discriminator; Data.Object stays raw until the variant is known.
type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripePaymentIntentEvent struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeCheckoutSessionEvent struct {
	ID            string `json:"id"`
	PaymentStatus string `json:"payment_status"`
}

type stripeChargeEvent struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Refunded      bool   `json:"refunded"`
}

type stripeAccountEvent struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// crossmintEnvelope is the outer Crossmint event shape.
type crossmintEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		OrderID string `json:"orderId"`
		Message string `json:"message"`
	} `json:"data"`
}

// HandleStripe processes a payments-mode Stripe event.
func (s *WebhookService) HandleStripe(ctx context.Context, payload []byte, signature string) error {
	return s.handleStripeVerified(ctx, domain.WebhookStripe, s.stripe, payload, signature)
}

// HandleStripeConnect processes a Connect-mode Stripe event, which is
// signed with a separate endpoint secret.
func (s *WebhookService) HandleStripeConnect(ctx context.Context, payload []byte, signature string) error {
	return s.handleStripeVerified(ctx, domain.WebhookStripeConnect, s.connect, payload, signature)
}

func (s *WebhookService) handleStripeVerified(ctx context.Context, provider domain.WebhookProvider, verifier SignatureVerifier, payload []byte, signature string) error {
	var env stripeEnvelope
	parseErr := json.Unmarshal(payload, &env)

	if err := verifier.Verify(payload, signature); err != nil {
		s.recordRejected(ctx, provider, env.ID, env.Type, payload, "signature: "+err.Error())
		return fmt.Errorf("webhook_service: %s signature: %w", provider, domain.ErrBadSignature)
	}
	if parseErr != nil || env.ID == "" || env.Type == "" {
		s.recordRejected(ctx, provider, env.ID, env.Type, payload, "malformed envelope")
		return fmt.Errorf("webhook_service: %s envelope: %w", provider, domain.ErrUnknownEvent)
	}

	evt := domain.WebhookEvent{
		ID:              uuid.NewString(),
		Provider:        provider,
		ProviderEventID: env.ID,
		EventType:       env.Type,
		Payload:         payload,
		SignatureValid:  true,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := s.events.Insert(ctx, evt); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			s.logger.InfoContext(ctx, "webhook replayed, acknowledged",
				slog.String("provider", string(provider)),
				slog.String("event_id", env.ID),
			)
			return nil
		}
		return fmt.Errorf("webhook_service: record event: %w", err)
	}

	var dispatchErr error
	if provider == domain.WebhookStripeConnect {
		dispatchErr = s.dispatchConnect(ctx, env)
	} else {
		dispatchErr = s.dispatchStripe(ctx, env)
	}
	return s.finish(ctx, evt, dispatchErr)
}

func (s *WebhookService) dispatchStripe(ctx context.Context, env stripeEnvelope) error {
	switch env.Type {
	case "payment_intent.succeeded":
		var pi stripePaymentIntentEvent
		if err := json.Unmarshal(env.Data.Object, &pi); err != nil || pi.ID == "" {
			return fmt.Errorf("webhook_service: payment_intent variant: %w", domain.ErrUnknownEvent)
		}
		return s.payments.CompleteByProcessorRef(ctx, domain.ProcessorStripe, pi.ID)

	case "payment_intent.payment_failed":
		var pi stripePaymentIntentEvent
		if err := json.Unmarshal(env.Data.Object, &pi); err != nil || pi.ID == "" {
			return fmt.Errorf("webhook_service: payment_intent variant: %w", domain.ErrUnknownEvent)
		}
		reason := "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
			reason = pi.LastPaymentError.Message
		}
		return s.payments.FailByProcessorRef(ctx, domain.ProcessorStripe, pi.ID, reason)

	case "checkout.session.completed":
		var cs stripeCheckoutSessionEvent
		if err := json.Unmarshal(env.Data.Object, &cs); err != nil || cs.ID == "" {
			return fmt.Errorf("webhook_service: checkout variant: %w", domain.ErrUnknownEvent)
		}
		if cs.PaymentStatus != "paid" {
			// Async payment methods complete later via
			// checkout.session.async_payment_succeeded.
			return nil
		}
		return s.payments.CompleteByProcessorRef(ctx, domain.ProcessorStripe, cs.ID)

	case "checkout.session.async_payment_succeeded":
		var cs stripeCheckoutSessionEvent
		if err := json.Unmarshal(env.Data.Object, &cs); err != nil || cs.ID == "" {
			return fmt.Errorf("webhook_service: checkout variant: %w", domain.ErrUnknownEvent)
		}
		return s.payments.CompleteByProcessorRef(ctx, domain.ProcessorStripe, cs.ID)

	case "checkout.session.async_payment_failed", "checkout.session.expired":
		var cs stripeCheckoutSessionEvent
		if err := json.Unmarshal(env.Data.Object, &cs); err != nil || cs.ID == "" {
			return fmt.Errorf("webhook_service: checkout variant: %w", domain.ErrUnknownEvent)
		}
		return s.payments.FailByProcessorRef(ctx, domain.ProcessorStripe, cs.ID, env.Type)

	case "charge.refunded":
		var ch stripeChargeEvent
		if err := json.Unmarshal(env.Data.Object, &ch); err != nil || ch.PaymentIntent == "" {
			return fmt.Errorf("webhook_service: charge variant: %w", domain.ErrUnknownEvent)
		}
		return s.payments.RefundByProcessorRef(ctx, domain.ProcessorStripe, ch.PaymentIntent)

	default:
		return fmt.Errorf("webhook_service: stripe event %q: %w", env.Type, domain.ErrUnknownEvent)
	}
}

func (s *WebhookService) dispatchConnect(ctx context.Context, env stripeEnvelope) error {
	switch env.Type {
	case "account.updated":
		var acct stripeAccountEvent
		if err := json.Unmarshal(env.Data.Object, &acct); err != nil || acct.ID == "" {
			return fmt.Errorf("webhook_service: account variant: %w", domain.ErrUnknownEvent)
		}
		profile, err := s.profiles.GetByStripeAccount(ctx, acct.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Account not linked to a profile yet; nothing to update.
				return nil
			}
			return fmt.Errorf("webhook_service: profile for account %q: %w", acct.ID, err)
		}
		s.auditLog(ctx, "stripe.account_updated", map[string]any{
			"profile_id":        profile.ID,
			"account_id":        acct.ID,
			"charges_enabled":   acct.ChargesEnabled,
			"payouts_enabled":   acct.PayoutsEnabled,
			"details_submitted": acct.DetailsSubmitted,
		})
		return nil

	case "account.application.deauthorized":
		s.auditLog(ctx, "stripe.account_deauthorized", map[string]any{"event_id": env.ID})
		return nil

	default:
		return fmt.Errorf("webhook_service: connect event %q: %w", env.Type, domain.ErrUnknownEvent)
	}
}

// HandleCrossmint processes a Crossmint order event.
func (s *WebhookService) HandleCrossmint(ctx context.Context, payload []byte, signature string) error {
	var env crossmintEnvelope
	parseErr := json.Unmarshal(payload, &env)

	if err := s.crossmint.Verify(payload, signature); err != nil {
		s.recordRejected(ctx, domain.WebhookCrossmint, env.ID, env.Type, payload, "signature: "+err.Error())
		return fmt.Errorf("webhook_service: crossmint signature: %w", domain.ErrBadSignature)
	}
	if parseErr != nil || env.ID == "" || env.Type == "" {
		s.recordRejected(ctx, domain.WebhookCrossmint, env.ID, env.Type, payload, "malformed envelope")
		return fmt.Errorf("webhook_service: crossmint envelope: %w", domain.ErrUnknownEvent)
	}

	evt := domain.WebhookEvent{
		ID:              uuid.NewString(),
		Provider:        domain.WebhookCrossmint,
		ProviderEventID: env.ID,
		EventType:       env.Type,
		Payload:         payload,
		SignatureValid:  true,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := s.events.Insert(ctx, evt); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			return nil
		}
		return fmt.Errorf("webhook_service: record event: %w", err)
	}

	var dispatchErr error
	switch env.Type {
	case "orders.payment.succeeded", "orders.delivery.completed":
		if env.Data.OrderID == "" {
			dispatchErr = fmt.Errorf("webhook_service: order variant: %w", domain.ErrUnknownEvent)
			break
		}
		dispatchErr = s.payments.CompleteByProcessorRef(ctx, domain.ProcessorCrossmint, env.Data.OrderID)
	case "orders.payment.failed":
		if env.Data.OrderID == "" {
			dispatchErr = fmt.Errorf("webhook_service: order variant: %w", domain.ErrUnknownEvent)
			break
		}
		reason := env.Data.Message
		if reason == "" {
			reason = "crossmint payment failed"
		}
		dispatchErr = s.payments.FailByProcessorRef(ctx, domain.ProcessorCrossmint, env.Data.OrderID, reason)
	default:
		dispatchErr = fmt.Errorf("webhook_service: crossmint event %q: %w", env.Type, domain.ErrUnknownEvent)
	}
	return s.finish(ctx, evt, dispatchErr)
}

// finish closes out a recorded event: processed on success, failed
// with the reason otherwise. A dispatch error still returns to the
// handler so the processor retries everything except unknown shapes.
func (s *WebhookService) finish(ctx context.Context, evt domain.WebhookEvent, dispatchErr error) error {
	now := time.Now().UTC()
	if dispatchErr == nil {
		if err := s.events.MarkProcessed(ctx, evt.ID, now); err != nil {
			s.logger.WarnContext(ctx, "mark processed failed",
				slog.String("event_id", evt.ID),
				slog.String("error", err.Error()),
			)
		}
		s.logger.InfoContext(ctx, "webhook processed",
			slog.String("provider", string(evt.Provider)),
			slog.String("type", evt.EventType),
		)
		return nil
	}

	if err := s.events.MarkFailed(ctx, evt.ID, dispatchErr.Error()); err != nil {
		s.logger.WarnContext(ctx, "mark failed errored",
			slog.String("event_id", evt.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.WarnContext(ctx, "webhook dispatch failed",
		slog.String("provider", string(evt.Provider)),
		slog.String("type", evt.EventType),
		slog.String("error", dispatchErr.Error()),
	)
	return dispatchErr
}

// recordRejected persists the raw body of an event that failed the
// boundary checks and raises an alertable signal. Rejections are kept
// for inspection, never processed.
func (s *WebhookService) recordRejected(ctx context.Context, provider domain.WebhookProvider, providerEventID, eventType string, payload []byte, reason string) {
	now := time.Now().UTC()
	if providerEventID == "" {
		providerEventID = "rejected:" + uuid.NewString()
	}
	evt := domain.WebhookEvent{
		ID:              uuid.NewString(),
		Provider:        provider,
		ProviderEventID: providerEventID,
		EventType:       eventType,
		Payload:         payload,
		SignatureValid:  false,
		ReceivedAt:      now,
		ProcessingError: reason,
	}
	if err := s.events.Insert(ctx, evt); err != nil && !errors.Is(err, domain.ErrDuplicateEvent) {
		s.logger.ErrorContext(ctx, "rejected webhook not recorded",
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, "webhook.rejected", map[string]any{
		"provider": string(provider),
		"type":     eventType,
		"reason":   reason,
	})
	if s.bus != nil {
		ev := domain.Event{
			ID:        uuid.NewString(),
			Type:      domain.EventWebhookRejected,
			EntityID:  providerEventID,
			Severity:  domain.SeverityCritical,
			Detail:    map[string]string{"provider": string(provider), "reason": reason},
			CreatedAt: now,
		}
		if data, err := json.Marshal(ev); err == nil {
			if pubErr := s.bus.Publish(ctx, ev.Topic(), data); pubErr != nil {
				s.logger.WarnContext(ctx, "event publish failed", slog.String("error", pubErr.Error()))
			}
		}
	}
	s.logger.WarnContext(ctx, "webhook rejected",
		slog.String("provider", string(provider)),
		slog.String("reason", reason),
	)
}

// ReplayUnprocessed re-dispatches recorded events that never finished,
// typically after an outage. Signature checks are not repeated; the
// stored events already passed them.
func (s *WebhookService) ReplayUnprocessed(ctx context.Context, limit int) (int, error) {
	events, err := s.events.ListUnprocessed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("webhook_service: list unprocessed: %w", err)
	}
	replayed := 0
	for _, evt := range events {
		if ctx.Err() != nil {
			break
		}
		if !evt.SignatureValid {
			continue
		}
		var dispatchErr error
		switch evt.Provider {
		case domain.WebhookCrossmint:
			var env crossmintEnvelope
			if err := json.Unmarshal(evt.Payload, &env); err != nil {
				continue
			}
			switch env.Type {
			case "orders.payment.succeeded", "orders.delivery.completed":
				dispatchErr = s.payments.CompleteByProcessorRef(ctx, domain.ProcessorCrossmint, env.Data.OrderID)
			case "orders.payment.failed":
				dispatchErr = s.payments.FailByProcessorRef(ctx, domain.ProcessorCrossmint, env.Data.OrderID, env.Data.Message)
			}
		default:
			var env stripeEnvelope
			if err := json.Unmarshal(evt.Payload, &env); err != nil {
				continue
			}
			if evt.Provider == domain.WebhookStripeConnect {
				dispatchErr = s.dispatchConnect(ctx, env)
			} else {
				dispatchErr = s.dispatchStripe(ctx, env)
			}
		}
		if dispatchErr != nil {
			if markErr := s.events.MarkFailed(ctx, evt.ID, dispatchErr.Error()); markErr != nil {
				s.logger.WarnContext(ctx, "mark failed errored", slog.String("error", markErr.Error()))
			}
			continue
		}
		if err := s.events.MarkProcessed(ctx, evt.ID, time.Now().UTC()); err != nil {
			s.logger.WarnContext(ctx, "mark processed failed", slog.String("error", err.Error()))
		}
		replayed++
	}
	return replayed, nil
}

func (s *WebhookService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", slog.String("error", err.Error()))
	}
}
