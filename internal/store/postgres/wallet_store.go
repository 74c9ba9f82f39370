package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL. The ledger is
// append-only; balances are always derived by summation at read time.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given connection pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

const walletSelectCols = `id, profile_id, entry_type, amount, currency, reference, note, created_at`

func scanWalletFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.WalletTransaction, error) {
	var t domain.WalletTransaction
	var entryType string

	err := scanner.Scan(
		&t.ID, &t.ProfileID, &entryType, &t.Amount, &t.Currency,
		&t.Reference, &t.Note, &t.CreatedAt,
	)
	if err != nil {
		return domain.WalletTransaction{}, err
	}

	t.Type = domain.WalletEntryType(entryType)
	return t, nil
}

func scanWalletRows(rows pgx.Rows) ([]domain.WalletTransaction, error) {
	var entries []domain.WalletTransaction
	for rows.Next() {
		t, err := scanWalletFromRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

// Insert appends a ledger entry. Entries are never updated or deleted
// individually; only the archiver trims aged history.
func (s *WalletStore) Insert(ctx context.Context, t domain.WalletTransaction) error {
	const query = `
		INSERT INTO wallet_ledger (
			id, profile_id, entry_type, amount, currency, reference, note, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.ProfileID, string(t.Type), t.Amount, t.Currency,
		t.Reference, t.Note, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert wallet entry %s: %w", t.ID, err)
	}
	return nil
}

// ListByProfile returns a profile's ledger entries, newest first.
func (s *WalletStore) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.WalletTransaction, error) {
	query := `SELECT ` + walletSelectCols + ` FROM wallet_ledger WHERE profile_id = $1`
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
		return nil, fmt.Errorf("postgres: list wallet entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanWalletRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan wallet entries: %w", err)
	}
	return entries, nil
}

// Balance derives a profile's available balance: credits minus debits in the
// given currency.
func (s *WalletStore) Balance(ctx context.Context, profileID, currency string) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(
			CASE WHEN entry_type = 'credit' THEN amount ELSE -amount END
		), 0)
		FROM wallet_ledger WHERE profile_id = $1 AND currency = $2`

	var balance decimal.Decimal
	if err := s.pool.QueryRow(ctx, query, profileID, currency).Scan(&balance); err != nil {
		return decimal.Decimal{}, fmt.Errorf("postgres: wallet balance %s: %w", profileID, err)
	}
	return balance, nil
}

// ListBefore returns ledger entries older than cutoff, oldest first, for
// archival export.
func (s *WalletStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WalletTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+walletSelectCols+` FROM wallet_ledger
		 WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallet entries before: %w", err)
	}
	defer rows.Close()

	entries, err := scanWalletRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan wallet entries before: %w", err)
	}
	return entries, nil
}

// DeleteBefore removes archived entries older than cutoff. Only the archiver
// calls this, after verifying the export upload.
func (s *WalletStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM wallet_ledger WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete wallet entries before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.WalletStore = (*WalletStore)(nil)
