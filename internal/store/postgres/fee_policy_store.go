package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// FeePolicyStore implements domain.FeePolicyStore using PostgreSQL. It is the
// policy source the fee schedule resolver consults; config defaults apply
// when a channel has no row here.
type FeePolicyStore struct {
	pool *pgxpool.Pool
}

// NewFeePolicyStore creates a new FeePolicyStore backed by the given
// connection pool.
func NewFeePolicyStore(pool *pgxpool.Pool) *FeePolicyStore {
	return &FeePolicyStore{pool: pool}
}

// Upsert inserts or updates a channel's rate, bumping the version on change.
func (s *FeePolicyStore) Upsert(ctx context.Context, p domain.FeePolicy) error {
	const query = `
		INSERT INTO fee_policies (channel, percent, version, effective_at, updated_at)
		VALUES ($1, $2, 1, $3, NOW())
		ON CONFLICT (channel) DO UPDATE SET
			percent      = EXCLUDED.percent,
			version      = fee_policies.version + 1,
			effective_at = EXCLUDED.effective_at,
			updated_at   = NOW()`

	_, err := s.pool.Exec(ctx, query, string(p.Channel), p.Percent, p.EffectiveAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert fee policy %s: %w", p.Channel, err)
	}
	return nil
}

// GetByChannel retrieves a single channel's rate.
func (s *FeePolicyStore) GetByChannel(ctx context.Context, channel domain.FeeChannel) (domain.FeePolicy, error) {
	const query = `SELECT channel, percent, version, effective_at, updated_at
		FROM fee_policies WHERE channel = $1`

	var p domain.FeePolicy
	var ch string
	err := s.pool.QueryRow(ctx, query, string(channel)).Scan(
		&ch, &p.Percent, &p.Version, &p.EffectiveAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FeePolicy{}, domain.ErrNotFound
		}
		return domain.FeePolicy{}, fmt.Errorf("postgres: get fee policy %s: %w", channel, err)
	}
	p.Channel = domain.FeeChannel(ch)
	return p, nil
}

// List returns all stored channel rates.
func (s *FeePolicyStore) List(ctx context.Context) ([]domain.FeePolicy, error) {
	const query = `SELECT channel, percent, version, effective_at, updated_at
		FROM fee_policies ORDER BY channel`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fee policies: %w", err)
	}
	defer rows.Close()

	var policies []domain.FeePolicy
	for rows.Next() {
		var p domain.FeePolicy
		var ch string
		if err := rows.Scan(&ch, &p.Percent, &p.Version, &p.EffectiveAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan fee policy: %w", err)
		}
		p.Channel = domain.FeeChannel(ch)
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fee policies rows: %w", err)
	}
	return policies, nil
}

// Compile-time interface check.
var _ domain.FeePolicyStore = (*FeePolicyStore)(nil)
