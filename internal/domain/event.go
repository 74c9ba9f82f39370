package domain

import "time"

// EventSeverity indicates how urgently an event needs operator eyes.
type EventSeverity int

const (
	SeverityInfo EventSeverity = iota
	SeverityWarning
	SeverityCritical
)

// EventType names a platform event published on the signal bus.
type EventType string

const (
	EventBidPlaced        EventType = "bid.placed"
	EventAuctionClosed    EventType = "auction.closed"
	EventAuctionSettled   EventType = "auction.settled"
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
	EventPayoutRequested  EventType = "payout.requested"
	EventPayoutPaid       EventType = "payout.paid"
	EventPayoutFailed     EventType = "payout.failed"
	EventTokenExpired     EventType = "video.token_expired"
	EventVideoUploaded    EventType = "video.uploaded"
	EventWebhookRejected  EventType = "webhook.rejected"
)

// Event is the envelope published on the signal bus and fanned out to
// WebSocket subscribers and the ops notifier.
type Event struct {
	ID        string // UUID for dedup
	Type      EventType
	EntityID  string // auction id, payout id, transaction id, ...
	ProfileID string // affected profile, when known
	Severity  EventSeverity
	Detail    map[string]string
	CreatedAt time.Time
}

// Topic returns the pub/sub channel for the event, keyed by entity so
// feed clients can subscribe per auction or per profile.
func (e Event) Topic() string {
	switch e.Type {
	case EventBidPlaced, EventAuctionClosed, EventAuctionSettled:
		return "auction:" + e.EntityID
	case EventPayoutRequested, EventPayoutPaid, EventPayoutFailed:
		return "payout:" + e.ProfileID
	default:
		return "platform"
	}
}

// SystemStatus is a summary of the server's operational state.
type SystemStatus struct {
	Mode          string
	UptimeSeconds int64
	PostgresOK    bool
	RedisOK       bool
	BlobOK        bool
	OpenAuctions  int64
	PendingPayout int64
}
