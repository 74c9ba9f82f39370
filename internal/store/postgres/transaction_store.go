package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a new TransactionStore backed by the given
// connection pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

const transactionSelectCols = `id, link_id, auction_id, payer_id, profile_id,
	processor, processor_ref, currency, gross_amount, fee_amount, net_amount,
	fee_percent, status, failure_reason, metadata, created_at, updated_at, succeeded_at`

func scanTransactionFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Transaction, error) {
	var t domain.Transaction
	var processor, status string
	var metadataJSON []byte

	err := scanner.Scan(
		&t.ID, &t.LinkID, &t.AuctionID, &t.PayerID, &t.ProfileID,
		&processor, &t.ProcessorRef, &t.Currency,
		&t.GrossAmount, &t.FeeAmount, &t.NetAmount, &t.FeePercent,
		&status, &t.FailureReason, &metadataJSON,
		&t.CreatedAt, &t.UpdatedAt, &t.SucceededAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}

	t.Processor = domain.PaymentProcessor(processor)
	t.Status = domain.TransactionStatus(status)

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
			return domain.Transaction{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return t, nil
}

func scanTransactionRows(rows pgx.Rows) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransactionFromRow(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Create inserts a new transaction. The amount columns are immutable once
// written; the CHECK constraint on the table enforces gross = fee + net.
func (s *TransactionStore) Create(ctx context.Context, t domain.Transaction) error {
	metadataJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal transaction metadata: %w", err)
	}

	const query = `
		INSERT INTO transactions (
			id, link_id, auction_id, payer_id, profile_id,
			processor, processor_ref, currency,
			gross_amount, fee_amount, net_amount, fee_percent,
			status, failure_reason, metadata,
			created_at, updated_at, succeeded_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15,
			$16, NOW(), $17
		)`

	_, err = s.pool.Exec(ctx, query,
		t.ID, t.LinkID, t.AuctionID, t.PayerID, t.ProfileID,
		string(t.Processor), t.ProcessorRef, t.Currency,
		t.GrossAmount, t.FeeAmount, t.NetAmount, t.FeePercent,
		string(t.Status), t.FailureReason, metadataJSON,
		t.CreatedAt, t.SucceededAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create transaction %s: %w", t.ID, err)
	}
	return nil
}

// GetByID retrieves a single transaction by ID.
func (s *TransactionStore) GetByID(ctx context.Context, id string) (domain.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionSelectCols+` FROM transactions WHERE id = $1`, id)

	t, err := scanTransactionFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Transaction{}, domain.ErrNotFound
		}
		return domain.Transaction{}, fmt.Errorf("postgres: get transaction %s: %w", id, err)
	}
	return t, nil
}

// GetByProcessorRef retrieves the transaction a webhook event refers to.
func (s *TransactionStore) GetByProcessorRef(ctx context.Context, processor domain.PaymentProcessor, ref string) (domain.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionSelectCols+` FROM transactions
		 WHERE processor = $1 AND processor_ref = $2`,
		string(processor), ref)

	t, err := scanTransactionFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Transaction{}, domain.ErrNotFound
		}
		return domain.Transaction{}, fmt.Errorf("postgres: get transaction by ref %s/%s: %w", processor, ref, err)
	}
	return t, nil
}

// UpdateStatus changes the status of an existing transaction and sets the
// succeeded_at timestamp when the payment captures.
func (s *TransactionStore) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus, failureReason string) error {
	var query string
	switch status {
	case domain.TransactionSucceeded:
		query = `UPDATE transactions SET status = $1, failure_reason = $2, succeeded_at = NOW(), updated_at = NOW() WHERE id = $3`
	default:
		query = `UPDATE transactions SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3`
	}

	tag, err := s.pool.Exec(ctx, query, string(status), failureReason, id)
	if err != nil {
		return fmt.Errorf("postgres: update transaction status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetMetadata replaces the transaction's metadata map.
func (s *TransactionStore) SetMetadata(ctx context.Context, id string, metadata map[string]string) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal transaction metadata: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions SET metadata = $1, updated_at = NOW() WHERE id = $2`,
		metadataJSON, id)
	if err != nil {
		return fmt.Errorf("postgres: set transaction metadata %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByProfile returns a professional's transactions with pagination.
func (s *TransactionStore) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionSelectCols + ` FROM transactions WHERE profile_id = $1`
	args := []any{profileID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()

	txns, err := scanTransactionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return txns, nil
}

// ListByLink returns every payment attempt recorded against one link.
func (s *TransactionStore) ListByLink(ctx context.Context, linkID string) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionSelectCols+` FROM transactions
		 WHERE link_id = $1 ORDER BY created_at DESC`, linkID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions by link: %w", err)
	}
	defer rows.Close()

	txns, err := scanTransactionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions by link: %w", err)
	}
	return txns, nil
}

// Count returns the total number of transactions.
func (s *TransactionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count transactions: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.TransactionStore = (*TransactionStore)(nil)
