package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// PaymentLinkStore implements domain.PaymentLinkStore using PostgreSQL.
type PaymentLinkStore struct {
	pool *pgxpool.Pool
}

// NewPaymentLinkStore creates a new PaymentLinkStore backed by the given
// connection pool.
func NewPaymentLinkStore(pool *pgxpool.Pool) *PaymentLinkStore {
	return &PaymentLinkStore{pool: pool}
}

const paymentLinkSelectCols = `id, profile_id, slug, title, description,
	amount, currency, fee_channel, status, expires_at, created_at, updated_at`

func scanPaymentLinkFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.PaymentLink, error) {
	var l domain.PaymentLink
	var feeChannel, status string

	err := scanner.Scan(
		&l.ID, &l.ProfileID, &l.Slug, &l.Title, &l.Description,
		&l.Amount, &l.Currency, &feeChannel, &status,
		&l.ExpiresAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.PaymentLink{}, err
	}

	l.FeeChannel = domain.FeeChannel(feeChannel)
	l.Status = domain.PaymentLinkStatus(status)
	return l, nil
}

func scanPaymentLinkRows(rows pgx.Rows) ([]domain.PaymentLink, error) {
	var links []domain.PaymentLink
	for rows.Next() {
		l, err := scanPaymentLinkFromRow(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// Create inserts a new payment link.
func (s *PaymentLinkStore) Create(ctx context.Context, l domain.PaymentLink) error {
	const query = `
		INSERT INTO payment_links (
			id, profile_id, slug, title, description,
			amount, currency, fee_channel, status, expires_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		l.ID, l.ProfileID, l.Slug, l.Title, l.Description,
		l.Amount, l.Currency, string(l.FeeChannel), string(l.Status), l.ExpiresAt,
		l.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create payment link %s: %w", l.ID, err)
	}
	return nil
}

// GetByID retrieves a single payment link by ID.
func (s *PaymentLinkStore) GetByID(ctx context.Context, id string) (domain.PaymentLink, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+paymentLinkSelectCols+` FROM payment_links WHERE id = $1`, id)

	l, err := scanPaymentLinkFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PaymentLink{}, domain.ErrNotFound
		}
		return domain.PaymentLink{}, fmt.Errorf("postgres: get payment link %s: %w", id, err)
	}
	return l, nil
}

// GetBySlug retrieves a payment link by its share slug. This is the public
// payer-view read path.
func (s *PaymentLinkStore) GetBySlug(ctx context.Context, slug string) (domain.PaymentLink, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+paymentLinkSelectCols+` FROM payment_links WHERE slug = $1`, slug)

	l, err := scanPaymentLinkFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PaymentLink{}, domain.ErrNotFound
		}
		return domain.PaymentLink{}, fmt.Errorf("postgres: get payment link by slug %s: %w", slug, err)
	}
	return l, nil
}

// ListByProfile returns a professional's payment links with pagination.
func (s *PaymentLinkStore) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.PaymentLink, error) {
	query := `SELECT ` + paymentLinkSelectCols + ` FROM payment_links WHERE profile_id = $1`
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
		return nil, fmt.Errorf("postgres: list payment links: %w", err)
	}
	defer rows.Close()

	links, err := scanPaymentLinkRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan payment links: %w", err)
	}
	return links, nil
}

// UpdateStatus changes the status of an existing payment link.
func (s *PaymentLinkStore) UpdateStatus(ctx context.Context, id string, status domain.PaymentLinkStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payment_links SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update payment link status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExpireDue marks every active link whose expiry has passed as expired and
// returns how many rows changed.
func (s *PaymentLinkStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payment_links SET status = 'expired', updated_at = NOW()
		 WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1`,
		now)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire due payment links: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.PaymentLinkStore = (*PaymentLinkStore)(nil)
