package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// videoPartSize is the multipart chunk size for video uploads.
const videoPartSize = 5 * 1024 * 1024

// VideoService owns the confirmation-video workflow: time-boxed upload
// tokens, the upload stream into blob storage, watch confirmation, and
// the hourly sweep that flags overdue tokens.
type VideoService struct {
	videos   domain.VideoTokenStore
	auctions domain.AuctionStore
	payouts  domain.PayoutStore
	writer   domain.BlobWriter
	reader   domain.BlobReader
	tokenTTL time.Duration
	bus      domain.SignalBus
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewVideoService creates a VideoService with all required dependencies.
func NewVideoService(
	videos domain.VideoTokenStore,
	auctions domain.AuctionStore,
	payouts domain.PayoutStore,
	writer domain.BlobWriter,
	reader domain.BlobReader,
	tokenTTL time.Duration,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *VideoService {
	if tokenTTL <= 0 {
		tokenTTL = 72 * time.Hour
	}
	return &VideoService{
		videos:   videos,
		auctions: auctions,
		payouts:  payouts,
		writer:   writer,
		reader:   reader,
		tokenTTL: tokenTTL,
		bus:      bus,
		audit:    audit,
		logger:   logger.With(slog.String("component", "video_service")),
	}
}

// IssueToken mints an upload credential for a settled auction. The
// token value is the only handle the upload URL carries.
func (s *VideoService) IssueToken(ctx context.Context, auctionID string) (domain.VideoToken, error) {
	if _, err := s.auctions.GetByID(ctx, auctionID); err != nil {
		return domain.VideoToken{}, fmt.Errorf("video_service: auction %q: %w", auctionID, err)
	}

	now := time.Now().UTC()
	tok := domain.VideoToken{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		Token:     randomToken(),
		ExpiresAt: now.Add(s.tokenTTL),
		CreatedAt: now,
	}
	if err := s.videos.Create(ctx, tok); err != nil {
		return domain.VideoToken{}, fmt.Errorf("video_service: create token: %w", err)
	}

	s.auditLog(ctx, "video.token_issued", map[string]any{
		"token_id":   tok.ID,
		"auction_id": auctionID,
		"expires_at": tok.ExpiresAt.Format(time.RFC3339),
	})
	s.logger.InfoContext(ctx, "video token issued",
		slog.String("auction_id", auctionID),
		slog.String("token_id", tok.ID),
	)
	return tok, nil
}

// GetToken resolves a token by its value.
func (s *VideoService) GetToken(ctx context.Context, token string) (domain.VideoToken, error) {
	tok, err := s.videos.GetByToken(ctx, token)
	if err != nil {
		return domain.VideoToken{}, fmt.Errorf("video_service: token: %w", err)
	}
	return tok, nil
}

// Upload streams a confirmation video into blob storage under a live
// token. Expired tokens refuse the upload; a second upload under the
// same token conflicts.
func (s *VideoService) Upload(ctx context.Context, token string, body io.Reader, contentType string) (domain.VideoToken, error) {
	tok, err := s.videos.GetByToken(ctx, token)
	if err != nil {
		return domain.VideoToken{}, fmt.Errorf("video_service: token: %w", err)
	}
	now := time.Now().UTC()
	if tok.Expired(now) {
		return domain.VideoToken{}, fmt.Errorf("video_service: token for auction %q: %w", tok.AuctionID, domain.ErrTokenExpired)
	}
	if tok.HasVideo() {
		return domain.VideoToken{}, fmt.Errorf("video_service: auction %q already has a video: %w", tok.AuctionID, domain.ErrConflict)
	}

	key := fmt.Sprintf("videos/%s/%s.mp4", tok.AuctionID, tok.ID)
	if err := s.writer.PutMultipart(ctx, key, body, videoPartSize); err != nil {
		return domain.VideoToken{}, fmt.Errorf("video_service: store video: %w", err)
	}
	if err := s.videos.MarkUploaded(ctx, tok.ID, key, now); err != nil {
		return domain.VideoToken{}, fmt.Errorf("video_service: mark uploaded: %w", err)
	}
	tok.StorageKey = key
	tok.UploadedAt = &now

	s.auditLog(ctx, "video.uploaded", map[string]any{
		"token_id":    tok.ID,
		"auction_id":  tok.AuctionID,
		"storage_key": key,
	})
	s.publish(ctx, domain.Event{
		ID:        uuid.NewString(),
		Type:      domain.EventVideoUploaded,
		EntityID:  tok.AuctionID,
		Severity:  domain.SeverityInfo,
		Detail:    map[string]string{"token_id": tok.ID},
		CreatedAt: now,
	})
	s.logger.InfoContext(ctx, "video uploaded",
		slog.String("auction_id", tok.AuctionID),
		slog.String("storage_key", key),
	)
	return tok, nil
}

// MarkWatched records the creator's watch confirmation, the final step
// before the payout unlocks.
func (s *VideoService) MarkWatched(ctx context.Context, token string) (domain.VideoToken, error) {
	tok, err := s.videos.GetByToken(ctx, token)
	if err != nil {
		return domain.VideoToken{}, fmt.Errorf("video_service: token: %w", err)
	}
	if !tok.HasVideo() {
		return domain.VideoToken{}, fmt.Errorf("video_service: auction %q has no video yet: %w", tok.AuctionID, domain.ErrConflict)
	}
	if tok.Watched() {
		return tok, nil
	}

	now := time.Now().UTC()
	if err := s.videos.MarkWatched(ctx, tok.ID, now); err != nil {
		return domain.VideoToken{}, fmt.Errorf("video_service: mark watched: %w", err)
	}
	tok.WatchedAt = &now

	s.auditLog(ctx, "video.watched", map[string]any{
		"token_id":   tok.ID,
		"auction_id": tok.AuctionID,
	})
	s.logger.InfoContext(ctx, "video watched",
		slog.String("auction_id", tok.AuctionID),
	)
	return tok, nil
}

// Stream opens the stored video for ranged playback. length <= 0 reads
// to the end of the object.
func (s *VideoService) Stream(ctx context.Context, token string, offset, length int64) (io.ReadCloser, error) {
	tok, err := s.videos.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("video_service: token: %w", err)
	}
	if !tok.HasVideo() {
		return nil, fmt.Errorf("video_service: auction %q has no video: %w", tok.AuctionID, domain.ErrNotFound)
	}
	if offset > 0 || length > 0 {
		rc, err := s.reader.GetRange(ctx, tok.StorageKey, offset, length)
		if err != nil {
			return nil, fmt.Errorf("video_service: read range: %w", err)
		}
		return rc, nil
	}
	rc, err := s.reader.Get(ctx, tok.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("video_service: read: %w", err)
	}
	return rc, nil
}

// SweepOverdue flags tokens whose upload window closed without a
// video: pending payouts of the affected professional reclassify to
// expired and an alertable event goes out. Returns how many tokens
// were flagged.
func (s *VideoService) SweepOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	overdue, err := s.videos.ListOverdue(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("video_service: list overdue: %w", err)
	}
	if len(overdue) == 0 {
		return 0, nil
	}

	pending, err := s.payouts.ListPending(ctx, limit)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "pending payouts lookup failed during sweep",
			slog.String("error", err.Error()),
		)
	}

	swept := 0
	for _, tok := range overdue {
		if ctx.Err() != nil {
			break
		}
		a, err := s.auctions.GetByID(ctx, tok.AuctionID)
		if err != nil {
			s.logger.WarnContext(ctx, "auction lookup failed during sweep",
				slog.String("auction_id", tok.AuctionID),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, po := range pending {
			if po.ProfileID != a.ProfileID || po.UnlockState.Unlocked() || po.UnlockState == domain.StateExpired {
				continue
			}
			if err := s.payouts.SetUnlockState(ctx, po.ID, domain.StateExpired); err != nil {
				s.logger.WarnContext(ctx, "payout reclassify failed",
					slog.String("payout_id", po.ID),
					slog.String("error", err.Error()),
				)
			}
		}

		s.auditLog(ctx, "video.token_expired", map[string]any{
			"token_id":   tok.ID,
			"auction_id": tok.AuctionID,
		})
		s.publish(ctx, domain.Event{
			ID:        uuid.NewString(),
			Type:      domain.EventTokenExpired,
			EntityID:  tok.AuctionID,
			ProfileID: a.ProfileID,
			Severity:  domain.SeverityWarning,
			Detail:    map[string]string{"token_id": tok.ID},
			CreatedAt: now,
		})
		swept++
	}

	if swept > 0 {
		s.logger.InfoContext(ctx, "overdue video tokens swept", slog.Int("count", swept))
	}
	return swept, nil
}

func (s *VideoService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", slog.String("error", err.Error()))
	}
}

func (s *VideoService) publish(ctx context.Context, ev domain.Event) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ev.Topic(), payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
	}
}

// randomToken returns a URL-safe 256-bit token value.
func randomToken() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b[:])
}
