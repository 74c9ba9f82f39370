package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// WebhookEventStore implements domain.WebhookEventStore using PostgreSQL.
// The (provider, provider_event_id) unique constraint is the replay guard:
// a second delivery of the same upstream event reports ErrDuplicateEvent.
type WebhookEventStore struct {
	pool *pgxpool.Pool
}

// NewWebhookEventStore creates a new WebhookEventStore backed by the given
// connection pool.
func NewWebhookEventStore(pool *pgxpool.Pool) *WebhookEventStore {
	return &WebhookEventStore{pool: pool}
}

const webhookEventSelectCols = `id, provider, provider_event_id, event_type,
	payload, signature_valid, received_at, processed_at, processing_error`

func scanWebhookEventFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	var provider string

	err := scanner.Scan(
		&e.ID, &provider, &e.ProviderEventID, &e.EventType,
		&e.Payload, &e.SignatureValid, &e.ReceivedAt, &e.ProcessedAt, &e.ProcessingError,
	)
	if err != nil {
		return domain.WebhookEvent{}, err
	}

	e.Provider = domain.WebhookProvider(provider)
	return e, nil
}

// Insert records an inbound event, raw payload included.
func (s *WebhookEventStore) Insert(ctx context.Context, e domain.WebhookEvent) error {
	const query = `
		INSERT INTO webhook_events (
			id, provider, provider_event_id, event_type,
			payload, signature_valid, received_at, processed_at, processing_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, string(e.Provider), e.ProviderEventID, e.EventType,
		e.Payload, e.SignatureValid, e.ReceivedAt, e.ProcessedAt, e.ProcessingError,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEvent
		}
		return fmt.Errorf("postgres: insert webhook event %s: %w", e.ID, err)
	}
	return nil
}

// MarkProcessed stamps the event as handled.
func (s *WebhookEventStore) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events SET processed_at = $1, processing_error = '' WHERE id = $2`,
		at, id)
	if err != nil {
		return fmt.Errorf("postgres: mark webhook event processed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed records why an event could not be processed. The event stays
// unprocessed so it shows up for inspection.
func (s *WebhookEventStore) MarkFailed(ctx context.Context, id, processingError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events SET processing_error = $1 WHERE id = $2`,
		processingError, id)
	if err != nil {
		return fmt.Errorf("postgres: mark webhook event failed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByProviderEventID retrieves an event by its upstream identity.
func (s *WebhookEventStore) GetByProviderEventID(ctx context.Context, provider domain.WebhookProvider, eventID string) (domain.WebhookEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+webhookEventSelectCols+` FROM webhook_events
		 WHERE provider = $1 AND provider_event_id = $2`,
		string(provider), eventID)

	e, err := scanWebhookEventFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.WebhookEvent{}, domain.ErrNotFound
		}
		return domain.WebhookEvent{}, fmt.Errorf("postgres: get webhook event %s/%s: %w", provider, eventID, err)
	}
	return e, nil
}

// ListUnprocessed returns events still awaiting processing, oldest first.
func (s *WebhookEventStore) ListUnprocessed(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+webhookEventSelectCols+` FROM webhook_events
		 WHERE processed_at IS NULL ORDER BY received_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unprocessed webhook events: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEventFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan webhook event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListBefore returns processed events older than cutoff, oldest first.
// Used by the archiver before trimming.
func (s *WebhookEventStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WebhookEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+webhookEventSelectCols+` FROM webhook_events
		 WHERE processed_at IS NOT NULL AND received_at < $1
		 ORDER BY received_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list webhook events before: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEventFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan webhook event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteBefore trims processed events older than cutoff.
func (s *WebhookEventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM webhook_events WHERE processed_at IS NOT NULL AND received_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete webhook events before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of recorded events.
func (s *WebhookEventStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM webhook_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count webhook events: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.WebhookEventStore = (*WebhookEventStore)(nil)
