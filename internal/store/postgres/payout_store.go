package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// PayoutStore implements domain.PayoutStore using PostgreSQL.
type PayoutStore struct {
	pool *pgxpool.Pool
}

// NewPayoutStore creates a new PayoutStore backed by the given connection pool.
func NewPayoutStore(pool *pgxpool.Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

const payoutSelectCols = `id, profile_id, amount, currency, rail, destination,
	status, unlock_state, batch_id, processor_ref, auth_signature,
	failure_reason, requested_at, updated_at, paid_at`

func scanPayoutFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Payout, error) {
	var p domain.Payout
	var rail, status, unlockState string

	err := scanner.Scan(
		&p.ID, &p.ProfileID, &p.Amount, &p.Currency, &rail, &p.Destination,
		&status, &unlockState, &p.BatchID, &p.ProcessorRef, &p.AuthSignature,
		&p.FailureReason, &p.RequestedAt, &p.UpdatedAt, &p.PaidAt,
	)
	if err != nil {
		return domain.Payout{}, err
	}

	p.Rail = domain.PayoutRail(rail)
	p.Status = domain.PayoutStatus(status)
	p.UnlockState = domain.UnlockState(unlockState)
	return p, nil
}

func scanPayoutRows(rows pgx.Rows) ([]domain.Payout, error) {
	var payouts []domain.Payout
	for rows.Next() {
		p, err := scanPayoutFromRow(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// Create inserts a new payout request.
func (s *PayoutStore) Create(ctx context.Context, p domain.Payout) error {
	const query = `
		INSERT INTO payouts (
			id, profile_id, amount, currency, rail, destination,
			status, unlock_state, batch_id, processor_ref, auth_signature,
			failure_reason, requested_at, updated_at, paid_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, NOW(), $14
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.ProfileID, p.Amount, p.Currency, string(p.Rail), p.Destination,
		string(p.Status), string(p.UnlockState), p.BatchID, p.ProcessorRef, p.AuthSignature,
		p.FailureReason, p.RequestedAt, p.PaidAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create payout %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single payout by ID.
func (s *PayoutStore) GetByID(ctx context.Context, id string) (domain.Payout, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+payoutSelectCols+` FROM payouts WHERE id = $1`, id)

	p, err := scanPayoutFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Payout{}, domain.ErrNotFound
		}
		return domain.Payout{}, fmt.Errorf("postgres: get payout %s: %w", id, err)
	}
	return p, nil
}

// UpdateStatus changes the status of an existing payout.
func (s *PayoutStore) UpdateStatus(ctx context.Context, id string, status domain.PayoutStatus, failureReason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payouts SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3`,
		string(status), failureReason, id)
	if err != nil {
		return fmt.Errorf("postgres: update payout status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetProcessorRef records the upstream reference for an in-flight payout.
func (s *PayoutStore) SetProcessorRef(ctx context.Context, id, ref string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payouts SET processor_ref = $1, updated_at = NOW() WHERE id = $2`, ref, id)
	if err != nil {
		return fmt.Errorf("postgres: set payout processor ref %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkPaid finalizes a payout: paid status, upstream reference, timestamp.
func (s *PayoutStore) MarkPaid(ctx context.Context, id, processorRef string, paidAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payouts SET status = 'paid', processor_ref = $1, paid_at = $2,
		        failure_reason = '', updated_at = NOW()
		 WHERE id = $3`, processorRef, paidAt, id)
	if err != nil {
		return fmt.Errorf("postgres: mark payout paid %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AssignBatch stamps a batch ID onto a set of payouts ahead of execution.
func (s *PayoutStore) AssignBatch(ctx context.Context, ids []string, batchID string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE payouts SET batch_id = $1, updated_at = NOW() WHERE id = ANY($2)`,
		batchID, ids)
	if err != nil {
		return fmt.Errorf("postgres: assign payout batch %s: %w", batchID, err)
	}
	return nil
}

// SetUnlockState snapshots the gate classification onto the payout row.
func (s *PayoutStore) SetUnlockState(ctx context.Context, id string, state domain.UnlockState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payouts SET unlock_state = $1, updated_at = NOW() WHERE id = $2`,
		string(state), id)
	if err != nil {
		return fmt.Errorf("postgres: set payout unlock state %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByProfile returns a professional's payouts with pagination.
func (s *PayoutStore) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.Payout, error) {
	query := `SELECT ` + payoutSelectCols + ` FROM payouts WHERE profile_id = $1 ORDER BY requested_at DESC`
	args := []any{profileID}
	argIdx := 2

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
		return nil, fmt.Errorf("postgres: list payouts by profile: %w", err)
	}
	defer rows.Close()

	payouts, err := scanPayoutRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan payouts by profile: %w", err)
	}
	return payouts, nil
}

// ListPending returns pending payouts oldest first, for the weekly batch.
func (s *PayoutStore) ListPending(ctx context.Context, limit int) ([]domain.Payout, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+payoutSelectCols+` FROM payouts
		 WHERE status = 'pending' ORDER BY requested_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending payouts: %w", err)
	}
	defer rows.Close()

	payouts, err := scanPayoutRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pending payouts: %w", err)
	}
	return payouts, nil
}

// CountPending returns the number of payouts awaiting execution.
func (s *PayoutStore) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM payouts WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count pending payouts: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.PayoutStore = (*PayoutStore)(nil)
