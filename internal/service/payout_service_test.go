package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/payout"
)

// fakeValidator accepts any non-empty address unchanged.
type fakeValidator struct{}

func (fakeValidator) ValidAddress(addr string) bool            { return addr != "" }
func (fakeValidator) ChecksumAddress(addr string) (string, error) { return addr, nil }

// fakeDisburser is a canned crypto transfer client.
type fakeDisburser struct {
	ref string
	err error
}

func (f *fakeDisburser) TransferToken(ctx context.Context, wallet string, amount decimal.Decimal, currency string) (string, error) {
	return f.ref, f.err
}

type payoutFixture struct {
	svc      *PayoutService
	payouts  *fakePayouts
	profiles *fakeProfiles
	auctions *fakeAuctions
	videos   *fakeVideos
	wallet   *fakeLedger
	connect  *fakeConnect
	locks    *fakeLocks
	signer   *fakeSigner
	bus      *fakeBus
}

func newPayoutFixture(t *testing.T, ps ...domain.Profile) *payoutFixture {
	t.Helper()
	f := &payoutFixture{
		payouts:  newFakePayouts(),
		profiles: newFakeProfiles(ps...),
		auctions: newFakeAuctions(),
		videos:   newFakeVideos(),
		wallet:   &fakeLedger{},
		connect:  &fakeConnect{account: stripeAccount(), transferRef: "tr_1"},
		locks:    &fakeLocks{},
		signer:   &fakeSigner{sig: "0xsigned"},
		bus:      &fakeBus{},
	}
	registry := payout.NewRegistry()
	registry.Register(payout.NewStripeRail(f.connect))
	registry.Register(payout.NewPayPalRail())
	registry.Register(payout.NewCryptoRail(fakeValidator{}, &fakeDisburser{ref: "0xtx"}))
	executor := payout.NewExecutor(registry, f.payouts, f.wallet, nil, f.bus, testLogger())
	f.svc = NewPayoutService(f.payouts, f.profiles, f.auctions, f.videos,
		f.wallet, registry, executor, f.signer, f.locks,
		d("50"), 10, f.bus, &fakeAudit{}, testLogger())
	return f
}

func modelProfile() domain.Profile {
	return domain.Profile{
		ID:              "model-1",
		Email:           "model@example.com",
		EmailVerified:   true,
		Role:            domain.RoleModel,
		StripeAccountID: "acct_1",
		PreferredRail:   domain.RailBankTransfer,
		PayPalEmail:     "model@paypal.example.com",
		WalletAddress:   "0xabc",
	}
}

func fundWallet(t *testing.T, f *payoutFixture, amount string) {
	t.Helper()
	require.NoError(t, f.wallet.Insert(context.Background(), domain.WalletTransaction{
		ID: "seed", ProfileID: "model-1", Type: domain.WalletCredit,
		Amount: d(amount), Currency: "AED", Reference: "adjustment",
	}))
}

func TestRequestPayout(t *testing.T) {
	f := newPayoutFixture(t, modelProfile())
	fundWallet(t, f, "500")

	po, err := f.svc.RequestPayout(context.Background(), "model-1", d("200.005"), "AED", "")
	require.NoError(t, err)
	requireDec(t, "200.01", po.Amount)
	require.Equal(t, domain.RailBankTransfer, po.Rail, "empty rail falls back to the profile preference")
	require.Equal(t, "acct_1", po.Destination)
	require.Equal(t, domain.PayoutPending, po.Status)
	require.Equal(t, domain.StateNoVideoRequired, po.UnlockState)
	require.Empty(t, po.AuthSignature)

	// The hold debit pins the funds immediately.
	balance, err := f.wallet.Balance(context.Background(), "model-1", "AED")
	require.NoError(t, err)
	requireDec(t, "299.99", balance)
	require.Contains(t, f.locks.held, "payout:model-1")
}

func TestRequestPayoutCryptoSignsAuth(t *testing.T) {
	p := modelProfile()
	p.PreferredRail = domain.RailCrypto
	f := newPayoutFixture(t, p)
	fundWallet(t, f, "500")

	po, err := f.svc.RequestPayout(context.Background(), "model-1", d("100"), "AED", domain.RailCrypto)
	require.NoError(t, err)
	require.Equal(t, "0xabc", po.Destination)
	require.Equal(t, "0xsigned", po.AuthSignature)
}

func TestRequestPayoutRejections(t *testing.T) {
	f := newPayoutFixture(t, modelProfile())
	fundWallet(t, f, "100")
	ctx := context.Background()

	_, err := f.svc.RequestPayout(ctx, "model-1", d("10"), "AED", "")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.RequestPayout(ctx, "model-1", d("150"), "AED", "")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = f.svc.RequestPayout(ctx, "missing", d("100"), "AED", "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.RequestPayout(ctx, "model-1", d("100"), "AED", domain.PayoutRail("hawala"))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequestPayoutLockedByVideoGate(t *testing.T) {
	f := newPayoutFixture(t, modelProfile())
	fundWallet(t, f, "500")
	ctx := context.Background()

	gated := openAuction(-time.Hour)
	gated.Status = domain.AuctionSettled
	gated.RequiresVideo = true
	require.NoError(t, f.auctions.Create(ctx, gated))
	exp := time.Now().UTC().Add(time.Hour)
	require.NoError(t, f.videos.Create(ctx, domain.VideoToken{
		ID: "tok-1", AuctionID: gated.ID, Token: "t1", ExpiresAt: exp,
	}))

	_, err := f.svc.RequestPayout(ctx, "model-1", d("100"), "AED", "")
	require.ErrorIs(t, err, domain.ErrPayoutLocked)

	// Upload plus watch confirmation unlocks the same request.
	now := time.Now().UTC()
	require.NoError(t, f.videos.MarkUploaded(ctx, "tok-1", "videos/x.mp4", now))
	require.NoError(t, f.videos.MarkWatched(ctx, "tok-1", now))

	po, err := f.svc.RequestPayout(ctx, "model-1", d("100"), "AED", "")
	require.NoError(t, err)
	require.Equal(t, domain.StateUnlocked, po.UnlockState)
}

func TestCancelPayout(t *testing.T) {
	f := newPayoutFixture(t, modelProfile())
	fundWallet(t, f, "500")
	ctx := context.Background()

	po, err := f.svc.RequestPayout(ctx, "model-1", d("200"), "AED", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelPayout(ctx, po.ID))

	got, _ := f.payouts.GetByID(ctx, po.ID)
	require.Equal(t, domain.PayoutCancelled, got.Status)

	// The hold comes back.
	balance, _ := f.wallet.Balance(ctx, "model-1", "AED")
	requireDec(t, "500", balance)

	err = f.svc.CancelPayout(ctx, po.ID)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestRunBatchPaysThroughStripe(t *testing.T) {
	f := newPayoutFixture(t, modelProfile())
	fundWallet(t, f, "500")
	ctx := context.Background()

	po, err := f.svc.RequestPayout(ctx, "model-1", d("200"), "AED", "")
	require.NoError(t, err)

	res, err := f.svc.RunBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Paid)
	require.Zero(t, res.Failed)

	got, _ := f.payouts.GetByID(ctx, po.ID)
	require.Equal(t, domain.PayoutPaid, got.Status)
	require.Equal(t, "tr_1", got.ProcessorRef)
	require.NotNil(t, got.BatchID)
	require.Len(t, f.connect.transfers, 1)
	require.Contains(t, f.locks.held, "payout_batch")
}

func TestRunBatchQueuesPayPal(t *testing.T) {
	f := newPayoutFixture(t, modelProfile())
	fundWallet(t, f, "500")
	ctx := context.Background()

	po, err := f.svc.RequestPayout(ctx, "model-1", d("200"), "AED", domain.RailPayPal)
	require.NoError(t, err)

	res, err := f.svc.RunBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Queued)

	got, _ := f.payouts.GetByID(ctx, po.ID)
	require.Equal(t, domain.PayoutProcessing, got.Status)
	require.Equal(t, "manual:"+po.ID, got.ProcessorRef)
}

func TestRunBatchRegatesExpiredWindow(t *testing.T) {
	f := newPayoutFixture(t, modelProfile())
	fundWallet(t, f, "500")
	ctx := context.Background()

	gated := openAuction(-time.Hour)
	gated.Status = domain.AuctionSettled
	gated.RequiresVideo = true
	require.NoError(t, f.auctions.Create(ctx, gated))
	exp := time.Now().UTC().Add(time.Minute)
	require.NoError(t, f.videos.Create(ctx, domain.VideoToken{
		ID: "tok-1", AuctionID: gated.ID, Token: "t1", ExpiresAt: exp,
	}))
	now := time.Now().UTC()
	require.NoError(t, f.videos.MarkUploaded(ctx, "tok-1", "videos/x.mp4", now))
	require.NoError(t, f.videos.MarkWatched(ctx, "tok-1", now))

	po, err := f.svc.RequestPayout(ctx, "model-1", d("200"), "AED", "")
	require.NoError(t, err)

	// The watch confirmation is withdrawn before the batch runs; the
	// fake store has no delete, so simulate the regression by swapping
	// the token for an unwatched, expired one.
	require.NoError(t, f.videos.Create(ctx, domain.VideoToken{
		ID: "tok-1", AuctionID: gated.ID, Token: "t1", ExpiresAt: now.Add(-time.Minute),
	}))

	res, err := f.svc.RunBatch(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Paid)
	require.Zero(t, res.Queued)

	got, _ := f.payouts.GetByID(ctx, po.ID)
	require.Equal(t, domain.PayoutPending, got.Status)
	require.Equal(t, domain.StateExpired, got.UnlockState)
	require.Empty(t, f.connect.transfers)
}

func TestRunBatchEmpty(t *testing.T) {
	f := newPayoutFixture(t, modelProfile())

	res, err := f.svc.RunBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, payout.BatchResult{}, res)
}
