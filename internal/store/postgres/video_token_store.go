package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// VideoTokenStore implements domain.VideoTokenStore using PostgreSQL.
type VideoTokenStore struct {
	pool *pgxpool.Pool
}

// NewVideoTokenStore creates a new VideoTokenStore backed by the given
// connection pool.
func NewVideoTokenStore(pool *pgxpool.Pool) *VideoTokenStore {
	return &VideoTokenStore{pool: pool}
}

const videoTokenSelectCols = `id, auction_id, token, storage_key,
	expires_at, uploaded_at, watched_at, created_at`

func scanVideoTokenFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.VideoToken, error) {
	var t domain.VideoToken
	err := scanner.Scan(
		&t.ID, &t.AuctionID, &t.Token, &t.StorageKey,
		&t.ExpiresAt, &t.UploadedAt, &t.WatchedAt, &t.CreatedAt,
	)
	if err != nil {
		return domain.VideoToken{}, err
	}
	return t, nil
}

// Create inserts a new video token.
func (s *VideoTokenStore) Create(ctx context.Context, t domain.VideoToken) error {
	const query = `
		INSERT INTO video_tokens (
			id, auction_id, token, storage_key,
			expires_at, uploaded_at, watched_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.AuctionID, t.Token, t.StorageKey,
		t.ExpiresAt, t.UploadedAt, t.WatchedAt, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create video token %s: %w", t.ID, err)
	}
	return nil
}

// GetByToken retrieves the row for a presented upload token.
func (s *VideoTokenStore) GetByToken(ctx context.Context, token string) (domain.VideoToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+videoTokenSelectCols+` FROM video_tokens WHERE token = $1`, token)

	t, err := scanVideoTokenFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.VideoToken{}, domain.ErrNotFound
		}
		return domain.VideoToken{}, fmt.Errorf("postgres: get video token: %w", err)
	}
	return t, nil
}

// GetByAuction retrieves the latest token issued for an auction.
func (s *VideoTokenStore) GetByAuction(ctx context.Context, auctionID string) (domain.VideoToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+videoTokenSelectCols+` FROM video_tokens
		 WHERE auction_id = $1 ORDER BY created_at DESC LIMIT 1`, auctionID)

	t, err := scanVideoTokenFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.VideoToken{}, domain.ErrNotFound
		}
		return domain.VideoToken{}, fmt.Errorf("postgres: get video token by auction %s: %w", auctionID, err)
	}
	return t, nil
}

// MarkUploaded records the stored video against the token.
func (s *VideoTokenStore) MarkUploaded(ctx context.Context, id, storageKey string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE video_tokens SET storage_key = $1, uploaded_at = $2 WHERE id = $3`,
		storageKey, at, id)
	if err != nil {
		return fmt.Errorf("postgres: mark video uploaded %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkWatched records that the creator confirmed watching the video.
func (s *VideoTokenStore) MarkWatched(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE video_tokens SET watched_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("postgres: mark video watched %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOverdue returns tokens past expiry with no video uploaded, for the
// sweeper to reclassify.
func (s *VideoTokenStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.VideoToken, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+videoTokenSelectCols+` FROM video_tokens
		 WHERE uploaded_at IS NULL AND expires_at <= $1
		 ORDER BY expires_at ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list overdue video tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.VideoToken
	for rows.Next() {
		t, err := scanVideoTokenFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan video token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Compile-time interface check.
var _ domain.VideoTokenStore = (*VideoTokenStore)(nil)
