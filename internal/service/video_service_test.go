package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
)

type videoFixture struct {
	svc      *VideoService
	videos   *fakeVideos
	auctions *fakeAuctions
	payouts  *fakePayouts
	blobs    *fakeBlobs
	bus      *fakeBus
}

func newVideoFixture(t *testing.T, as ...domain.Auction) *videoFixture {
	t.Helper()
	f := &videoFixture{
		videos:   newFakeVideos(),
		auctions: newFakeAuctions(as...),
		payouts:  newFakePayouts(),
		blobs:    newFakeBlobs(),
		bus:      &fakeBus{},
	}
	f.svc = NewVideoService(f.videos, f.auctions, f.payouts, f.blobs, f.blobs,
		72*time.Hour, f.bus, &fakeAudit{}, testLogger())
	return f
}

func TestIssueToken(t *testing.T) {
	f := newVideoFixture(t, openAuction(time.Hour))

	tok, err := f.svc.IssueToken(context.Background(), "auc-1")
	require.NoError(t, err)
	require.NotEmpty(t, tok.ID)
	require.NotEmpty(t, tok.Token)
	require.Equal(t, "auc-1", tok.AuctionID)
	require.True(t, tok.ExpiresAt.After(time.Now().UTC().Add(71*time.Hour)))

	_, err = f.svc.IssueToken(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUploadAndStream(t *testing.T) {
	f := newVideoFixture(t, openAuction(time.Hour))
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, "auc-1")
	require.NoError(t, err)

	got, err := f.svc.Upload(ctx, tok.Token, strings.NewReader("mp4 bytes"), "video/mp4")
	require.NoError(t, err)
	require.True(t, got.HasVideo())
	require.Equal(t, "videos/auc-1/"+tok.ID+".mp4", got.StorageKey)

	rc, err := f.svc.Stream(ctx, tok.Token, 0, 0)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "mp4 bytes", string(data))

	rc, err = f.svc.Stream(ctx, tok.Token, 4, 5)
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "bytes", string(data))

	require.Contains(t, f.bus.topics(), "platform")
}

func TestUploadGuards(t *testing.T) {
	f := newVideoFixture(t, openAuction(time.Hour))
	ctx := context.Background()

	expired := domain.VideoToken{
		ID: "tok-old", AuctionID: "auc-1", Token: "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, f.videos.Create(ctx, expired))

	_, err := f.svc.Upload(ctx, "stale", strings.NewReader("x"), "video/mp4")
	require.ErrorIs(t, err, domain.ErrTokenExpired)

	tok, err := f.svc.IssueToken(ctx, "auc-1")
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, tok.Token, strings.NewReader("x"), "video/mp4")
	require.NoError(t, err)

	// The slot is single-use.
	_, err = f.svc.Upload(ctx, tok.Token, strings.NewReader("y"), "video/mp4")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestMarkWatched(t *testing.T) {
	f := newVideoFixture(t, openAuction(time.Hour))
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, "auc-1")
	require.NoError(t, err)

	_, err = f.svc.MarkWatched(ctx, tok.Token)
	require.ErrorIs(t, err, domain.ErrConflict, "cannot confirm before the video exists")

	_, err = f.svc.Upload(ctx, tok.Token, strings.NewReader("x"), "video/mp4")
	require.NoError(t, err)

	got, err := f.svc.MarkWatched(ctx, tok.Token)
	require.NoError(t, err)
	require.True(t, got.Watched())
	first := got.WatchedAt

	// Confirming again is a no-op, not an error.
	got, err = f.svc.MarkWatched(ctx, tok.Token)
	require.NoError(t, err)
	require.Equal(t, first.Unix(), got.WatchedAt.Unix())
}

func TestStreamRequiresVideo(t *testing.T) {
	f := newVideoFixture(t, openAuction(time.Hour))
	ctx := context.Background()

	tok, err := f.svc.IssueToken(ctx, "auc-1")
	require.NoError(t, err)

	_, err = f.svc.Stream(ctx, tok.Token, 0, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSweepOverdue(t *testing.T) {
	a := openAuction(-time.Hour)
	a.Status = domain.AuctionSettled
	a.RequiresVideo = true
	f := newVideoFixture(t, a)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, f.videos.Create(ctx, domain.VideoToken{
		ID: "tok-1", AuctionID: "auc-1", Token: "t1",
		ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, f.payouts.Create(ctx, domain.Payout{
		ID: "po-1", ProfileID: "model-1", Amount: d("100"), Currency: "AED",
		Status: domain.PayoutPending, UnlockState: domain.StateAwaitingUpload,
	}))
	require.NoError(t, f.payouts.Create(ctx, domain.Payout{
		ID: "po-2", ProfileID: "other", Amount: d("50"), Currency: "AED",
		Status: domain.PayoutPending, UnlockState: domain.StateAwaitingUpload,
	}))

	n, err := f.svc.SweepOverdue(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	po, _ := f.payouts.GetByID(ctx, "po-1")
	require.Equal(t, domain.StateExpired, po.UnlockState)
	po, _ = f.payouts.GetByID(ctx, "po-2")
	require.Equal(t, domain.StateAwaitingUpload, po.UnlockState, "other professionals stay untouched")

	require.Contains(t, f.bus.topics(), "platform")
}

func TestSweepOverdueNothingDue(t *testing.T) {
	f := newVideoFixture(t)

	n, err := f.svc.SweepOverdue(context.Background(), time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Zero(t, n)
}
