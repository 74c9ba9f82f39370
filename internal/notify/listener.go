package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// listenTopics covers every channel events are published on.
var listenTopics = []string{
	"platform",
	"auction:*",
	"payout:*",
}

// Listener consumes platform events from the signal bus and forwards
// the ones that clear the severity floor to the Notifier, which applies
// its own event-type filter on top.
type Listener struct {
	bus         domain.SignalBus
	notifier    *Notifier
	minSeverity domain.EventSeverity
	logger      *slog.Logger
}

// NewListener creates a Listener. minSeverity is the config string
// ("info", "warning", "critical"); unknown values fall back to info.
func NewListener(bus domain.SignalBus, notifier *Notifier, minSeverity string, logger *slog.Logger) *Listener {
	return &Listener{
		bus:         bus,
		notifier:    notifier,
		minSeverity: parseSeverity(minSeverity),
		logger:      logger.With(slog.String("component", "notify_listener")),
	}
}

// Run subscribes to all event topics and dispatches until the context
// is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	events := make(chan []byte, 64)
	for _, topic := range listenTopics {
		ch, err := l.bus.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("notify: subscribe %q: %w", topic, err)
		}
		go func(in <-chan []byte) {
			for {
				select {
				case <-ctx.Done():
					return
				case data, ok := <-in:
					if !ok {
						return
					}
					select {
					case events <- data:
					case <-ctx.Done():
						return
					}
				}
			}
		}(ch)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-events:
			l.handle(ctx, data)
		}
	}
}

func (l *Listener) handle(ctx context.Context, data []byte) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		l.logger.WarnContext(ctx, "undecodable event on bus", slog.String("error", err.Error()))
		return
	}
	if ev.Severity < l.minSeverity {
		return
	}
	title, message := formatEvent(ev)
	if err := l.notifier.Notify(ctx, string(ev.Type), title, message); err != nil {
		l.logger.WarnContext(ctx, "notification delivery failed",
			slog.String("event", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// formatEvent renders an event as a short operator-facing message.
func formatEvent(ev domain.Event) (title, message string) {
	title = severityPrefix(ev.Severity) + string(ev.Type)

	var b strings.Builder
	if ev.EntityID != "" {
		fmt.Fprintf(&b, "entity: %s\n", ev.EntityID)
	}
	if ev.ProfileID != "" {
		fmt.Fprintf(&b, "profile: %s\n", ev.ProfileID)
	}
	for k, v := range ev.Detail {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

func severityPrefix(s domain.EventSeverity) string {
	switch s {
	case domain.SeverityCritical:
		return "[CRITICAL] "
	case domain.SeverityWarning:
		return "[WARN] "
	default:
		return ""
	}
}

func parseSeverity(s string) domain.EventSeverity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return domain.SeverityCritical
	case "warning":
		return domain.SeverityWarning
	default:
		return domain.SeverityInfo
	}
}
