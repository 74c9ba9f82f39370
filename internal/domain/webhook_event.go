package domain

import "time"

// WebhookProvider identifies which upstream sent an event.
type WebhookProvider string

const (
	WebhookStripe        WebhookProvider = "stripe"
	WebhookStripeConnect WebhookProvider = "stripe_connect"
	WebhookCrossmint     WebhookProvider = "crossmint"
)

// WebhookEvent records every inbound processor event, valid or not.
// (Provider, ProviderEventID) is unique: a replayed delivery is
// acknowledged without reprocessing. Payload keeps the raw body so a
// rejected event can be inspected later.
type WebhookEvent struct {
	ID              string
	Provider        WebhookProvider
	ProviderEventID string
	EventType       string
	Payload         []byte
	SignatureValid  bool
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	ProcessingError string
}
