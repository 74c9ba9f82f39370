package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL. The bids table is
// append-only history; the auction row carries the derived current price.
type BidStore struct {
	pool *pgxpool.Pool
}

// NewBidStore creates a new BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

const bidSelectCols = `id, auction_id, bidder_id, amount, placed_at`

func scanBidFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Bid, error) {
	var b domain.Bid
	err := scanner.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.PlacedAt)
	if err != nil {
		return domain.Bid{}, err
	}
	return b, nil
}

// Insert appends a bid to the history.
func (s *BidStore) Insert(ctx context.Context, b domain.Bid) error {
	const query = `
		INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query, b.ID, b.AuctionID, b.BidderID, b.Amount, b.PlacedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert bid %s: %w", b.ID, err)
	}
	return nil
}

// ListByAuction returns an auction's bids, highest first.
func (s *BidStore) ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	query := `SELECT ` + bidSelectCols + ` FROM bids
		WHERE auction_id = $1 ORDER BY amount DESC, placed_at ASC`
	args := []any{auctionID}
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
		return nil, fmt.Errorf("postgres: list bids %s: %w", auctionID, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBidFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// Top returns the winning bid of an auction: the highest amount, earliest
// placed on ties.
func (s *BidStore) Top(ctx context.Context, auctionID string) (domain.Bid, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bidSelectCols+` FROM bids
		 WHERE auction_id = $1 ORDER BY amount DESC, placed_at ASC LIMIT 1`, auctionID)

	b, err := scanBidFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bid{}, domain.ErrNotFound
		}
		return domain.Bid{}, fmt.Errorf("postgres: top bid %s: %w", auctionID, err)
	}
	return b, nil
}

// CountByAuction returns the number of bids placed on an auction.
func (s *BidStore) CountByAuction(ctx context.Context, auctionID string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count bids %s: %w", auctionID, err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.BidStore = (*BidStore)(nil)
