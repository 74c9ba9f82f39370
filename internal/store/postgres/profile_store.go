package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// ProfileStore implements domain.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new ProfileStore backed by the given connection pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

const profileSelectCols = `id, email, email_verified, phone, phone_verified,
	display_name, role, stripe_account_id, preferred_rail,
	bank_iban, paypal_email, wallet_address, created_at, updated_at`

func scanProfileFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Profile, error) {
	var p domain.Profile
	var role, rail string

	err := scanner.Scan(
		&p.ID, &p.Email, &p.EmailVerified, &p.Phone, &p.PhoneVerified,
		&p.DisplayName, &role, &p.StripeAccountID, &rail,
		&p.BankIBAN, &p.PayPalEmail, &p.WalletAddress,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Profile{}, err
	}

	p.Role = domain.ProfileRole(role)
	p.PreferredRail = domain.PayoutRail(rail)
	return p, nil
}

// Create inserts a new profile.
func (s *ProfileStore) Create(ctx context.Context, p domain.Profile) error {
	const query = `
		INSERT INTO profiles (
			id, email, email_verified, phone, phone_verified,
			display_name, role, stripe_account_id, preferred_rail,
			bank_iban, paypal_email, wallet_address, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Email, p.EmailVerified, p.Phone, p.PhoneVerified,
		p.DisplayName, string(p.Role), p.StripeAccountID, string(p.PreferredRail),
		p.BankIBAN, p.PayPalEmail, p.WalletAddress, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create profile %s: %w", p.ID, err)
	}
	return nil
}

// Update rewrites the mutable profile fields.
func (s *ProfileStore) Update(ctx context.Context, p domain.Profile) error {
	const query = `
		UPDATE profiles SET
			email = $2, phone = $3, display_name = $4, role = $5,
			preferred_rail = $6, bank_iban = $7, paypal_email = $8,
			wallet_address = $9, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Email, p.Phone, p.DisplayName, string(p.Role),
		string(p.PreferredRail), p.BankIBAN, p.PayPalEmail, p.WalletAddress,
	)
	if err != nil {
		return fmt.Errorf("postgres: update profile %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single profile by ID.
func (s *ProfileStore) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileSelectCols+` FROM profiles WHERE id = $1`, id)

	p, err := scanProfileFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Profile{}, domain.ErrNotFound
		}
		return domain.Profile{}, fmt.Errorf("postgres: get profile %s: %w", id, err)
	}
	return p, nil
}

// GetByEmail retrieves a single profile by email address.
func (s *ProfileStore) GetByEmail(ctx context.Context, email string) (domain.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileSelectCols+` FROM profiles WHERE email = $1`, email)

	p, err := scanProfileFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Profile{}, domain.ErrNotFound
		}
		return domain.Profile{}, fmt.Errorf("postgres: get profile by email: %w", err)
	}
	return p, nil
}

// GetByStripeAccount retrieves the profile owning a Connect account.
func (s *ProfileStore) GetByStripeAccount(ctx context.Context, accountID string) (domain.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileSelectCols+` FROM profiles WHERE stripe_account_id = $1`, accountID)

	p, err := scanProfileFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Profile{}, domain.ErrNotFound
		}
		return domain.Profile{}, fmt.Errorf("postgres: get profile by stripe account %s: %w", accountID, err)
	}
	return p, nil
}

// SetEmailVerified marks the profile's email address as verified.
func (s *ProfileStore) SetEmailVerified(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: set email verified %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetPhoneVerified marks the profile's phone number as verified.
func (s *ProfileStore) SetPhoneVerified(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET phone_verified = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: set phone verified %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetStripeAccount records the Connect account created for a profile.
func (s *ProfileStore) SetStripeAccount(ctx context.Context, id, accountID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET stripe_account_id = $2, updated_at = NOW() WHERE id = $1`, id, accountID)
	if err != nil {
		return fmt.Errorf("postgres: set stripe account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns the total number of profiles.
func (s *ProfileStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count profiles: %w", err)
	}
	return n, nil
}
