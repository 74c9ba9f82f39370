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

// AuctionStore implements domain.AuctionStore using PostgreSQL. Settlement
// rows live in their own table keyed by auction; saving one is guarded by the
// primary key so an auction can only ever settle once.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new AuctionStore backed by the given connection pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

const auctionSelectCols = `id, profile_id, title, description,
	start_price, current_price, min_increment, currency, fee_percent,
	requires_video, status, winner_id, bid_count, ends_at, created_at, updated_at`

func scanAuctionFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Auction, error) {
	var a domain.Auction
	var status string

	err := scanner.Scan(
		&a.ID, &a.ProfileID, &a.Title, &a.Description,
		&a.StartPrice, &a.CurrentPrice, &a.MinIncrement, &a.Currency, &a.FeePercent,
		&a.RequiresVideo, &status, &a.WinnerID, &a.BidCount,
		&a.EndsAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Auction{}, err
	}

	a.Status = domain.AuctionStatus(status)
	return a, nil
}

func scanAuctionRows(rows pgx.Rows) ([]domain.Auction, error) {
	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuctionFromRow(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// Create inserts a new auction.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) error {
	const query = `
		INSERT INTO auctions (
			id, profile_id, title, description,
			start_price, current_price, min_increment, currency, fee_percent,
			requires_video, status, winner_id, bid_count, ends_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.ProfileID, a.Title, a.Description,
		a.StartPrice, a.CurrentPrice, a.MinIncrement, a.Currency, a.FeePercent,
		a.RequiresVideo, string(a.Status), a.WinnerID, a.BidCount, a.EndsAt,
		a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create auction %s: %w", a.ID, err)
	}
	return nil
}

// GetByID retrieves a single auction by ID.
func (s *AuctionStore) GetByID(ctx context.Context, id string) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions WHERE id = $1`, id)

	a, err := scanAuctionFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Auction{}, domain.ErrNotFound
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %s: %w", id, err)
	}
	return a, nil
}

// Update rewrites the mutable auction fields.
func (s *AuctionStore) Update(ctx context.Context, a domain.Auction) error {
	const query = `
		UPDATE auctions SET
			title = $2, description = $3, current_price = $4,
			min_increment = $5, status = $6, winner_id = $7,
			bid_count = $8, ends_at = $9, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		a.ID, a.Title, a.Description, a.CurrentPrice,
		a.MinIncrement, string(a.Status), a.WinnerID,
		a.BidCount, a.EndsAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update auction %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus changes the status of an existing auction.
func (s *AuctionStore) UpdateStatus(ctx context.Context, id string, status domain.AuctionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update auction status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordBid advances the auction's current price, winner, and bid count in a
// single guarded update. The price predicate makes concurrent equal bids
// race safely: only one of them moves the row, the loser sees ErrBidTooLow.
func (s *AuctionStore) RecordBid(ctx context.Context, id string, price decimal.Decimal, bidderID string) error {
	const query = `
		UPDATE auctions SET
			current_price = $2, winner_id = $3,
			bid_count = bid_count + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'open' AND current_price < $2`

	tag, err := s.pool.Exec(ctx, query, id, price, bidderID)
	if err != nil {
		return fmt.Errorf("postgres: record bid on auction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBidTooLow
	}
	return nil
}

// ListOpen returns open auctions ordered by soonest ending.
func (s *AuctionStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	query := `SELECT ` + auctionSelectCols + ` FROM auctions WHERE status = 'open' ORDER BY ends_at ASC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list open auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open auctions: %w", err)
	}
	return auctions, nil
}

// ListEndedBefore returns open auctions whose end time has passed, for the
// auto settler to close.
func (s *AuctionStore) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions
		 WHERE status = 'open' AND ends_at <= $1
		 ORDER BY ends_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ended auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ended auctions: %w", err)
	}
	return auctions, nil
}

// ListByProfile returns a professional's auctions with pagination.
func (s *AuctionStore) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.Auction, error) {
	query := `SELECT ` + auctionSelectCols + ` FROM auctions WHERE profile_id = $1 ORDER BY created_at DESC`
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
		return nil, fmt.Errorf("postgres: list auctions by profile: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan auctions by profile: %w", err)
	}
	return auctions, nil
}

// SaveSettlement persists the final accounting of a closed auction. A second
// save for the same auction reports ErrConflict; settlements are immutable.
func (s *AuctionStore) SaveSettlement(ctx context.Context, st domain.Settlement) error {
	const query = `
		INSERT INTO settlements (
			auction_id, winning_bid, start_price,
			profit, platform_fee, model_net_amount, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		st.AuctionID, st.WinningBid, st.StartPrice,
		st.Profit, st.PlatformFee, st.ModelNetAmount, st.SettledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("postgres: save settlement %s: %w", st.AuctionID, err)
	}
	return nil
}

// GetSettlement retrieves the settlement for an auction.
func (s *AuctionStore) GetSettlement(ctx context.Context, auctionID string) (domain.Settlement, error) {
	const query = `
		SELECT auction_id, winning_bid, start_price,
		       profit, platform_fee, model_net_amount, settled_at
		FROM settlements WHERE auction_id = $1`

	var st domain.Settlement
	err := s.pool.QueryRow(ctx, query, auctionID).Scan(
		&st.AuctionID, &st.WinningBid, &st.StartPrice,
		&st.Profit, &st.PlatformFee, &st.ModelNetAmount, &st.SettledAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Settlement{}, domain.ErrNotFound
		}
		return domain.Settlement{}, fmt.Errorf("postgres: get settlement %s: %w", auctionID, err)
	}
	return st, nil
}

// CountOpen returns the number of currently open auctions.
func (s *AuctionStore) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM auctions WHERE status = 'open'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count open auctions: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.AuctionStore = (*AuctionStore)(nil)
