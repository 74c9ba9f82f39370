package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// archiveBatchLimit caps how many rows one archive pass exports. The
// nightly worker runs until a pass comes back short, so backlogs drain
// over successive passes.
const archiveBatchLimit = 10000

// LedgerArchiveStore is the slice of the wallet store the archiver
// reads and trims.
type LedgerArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WalletTransaction, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WebhookArchiveStore is the slice of the webhook event store the
// archiver reads and trims.
type WebhookArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WebhookEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver by exporting aged rows to
// JSONL files in S3 and then trimming them from Postgres. The upload
// happens before the delete so a failed delete re-exports rather than
// loses data.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	ledger   LedgerArchiveStore
	webhooks WebhookArchiveStore
	audit    domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	ledger LedgerArchiveStore,
	webhooks WebhookArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		ledger:   ledger,
		webhooks: webhooks,
		audit:    audit,
	}
}

// ArchiveLedger exports wallet entries older than the cutoff to
// archive/ledger/YYYY-MM.jsonl, trims them from the database, and
// records the export in the audit log. Returns the number of archived
// rows.
func (a *ArchiveImpl) ArchiveLedger(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.ledger.ListBefore(ctx, before, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger marshal: %w", err)
	}

	path := archivePath("ledger", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger upload: %w", err)
	}

	deleted, err := a.ledger.DeleteBefore(ctx, entries[len(entries)-1].CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger trim: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.ledger", map[string]any{
		"path":    path,
		"count":   len(entries),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: archive ledger audit log: %w", err)
	}

	return int64(len(entries)), nil
}

// ArchiveWebhookEvents exports processed webhook events older than the
// cutoff to archive/webhook_events/YYYY-MM.jsonl and trims them.
func (a *ArchiveImpl) ArchiveWebhookEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.webhooks.ListBefore(ctx, before, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive webhook events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive webhook events marshal: %w", err)
	}

	path := archivePath("webhook_events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive webhook events upload: %w", err)
	}

	deleted, err := a.webhooks.DeleteBefore(ctx, events[len(events)-1].ReceivedAt)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive webhook events trim: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.webhook_events", map[string]any{
		"path":    path,
		"count":   len(events),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(events)), fmt.Errorf("s3blob: archive webhook events audit log: %w", err)
	}

	return int64(len(events)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/ledger/2025-01.jsonl
//	archive/webhook_events/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
