package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/fees"
	"github.com/decodebeauty/decode-server/internal/platform/crossmint"
	"github.com/decodebeauty/decode-server/internal/platform/stripe"
)

// paymentFixture bundles a PaymentService with every fake it talks to.
type paymentFixture struct {
	svc       *PaymentService
	links     *fakeLinks
	txs       *fakeTxs
	wallet    *fakeLedger
	stripe    *fakeStripe
	crossmint *fakeCrossmintGW
	limiter   *fakeLimiter
	bus       *fakeBus
	audit     *fakeAudit
}

func testSchedule(t *testing.T) fees.Schedule {
	t.Helper()
	sched, err := fees.NewSchedule(map[domain.FeeChannel]decimal.Decimal{
		domain.ChannelPaymentIntent: d("10"),
		domain.ChannelCheckout:      d("12"),
		domain.ChannelCrossmint:     d("8"),
		domain.ChannelAuction:       d("20"),
	}, 1)
	require.NoError(t, err)
	return sched
}

func newPaymentFixture(t *testing.T, links ...domain.PaymentLink) *paymentFixture {
	t.Helper()
	f := &paymentFixture{
		links:  newFakeLinks(links...),
		txs:    newFakeTxs(),
		wallet: &fakeLedger{},
		stripe: &fakeStripe{
			intent:  stripe.APIPaymentIntent{ID: "pi_1", ClientSecret: "cs_1"},
			session: stripe.APICheckoutSession{ID: "cs_sess_1", URL: "https://checkout.test/s/1"},
		},
		crossmint: &fakeCrossmintGW{order: crossmint.APIOrder{OrderID: "order_1"}},
		limiter:   &fakeLimiter{deny: map[string]bool{}},
		bus:       &fakeBus{},
		audit:     &fakeAudit{},
	}
	resolver := fees.NewResolver(nil, testSchedule(t), testLogger())
	rates := NewRateService(newMemRateCache(), []domain.ExchangeRate{
		{Base: "USD", Quote: "AED", Price: d("3.6725"), Version: 1},
	}, testLogger())
	f.svc = NewPaymentService(f.links, f.txs, f.wallet, resolver, rates,
		f.stripe, f.crossmint, f.limiter, f.bus, f.audit, testLogger())
	return f
}

func activeLink() domain.PaymentLink {
	return domain.PaymentLink{
		ID:         "link-1",
		ProfileID:  "model-1",
		Slug:       "glam",
		Title:      "Glam session",
		Amount:     d("100"),
		Currency:   "AED",
		FeeChannel: domain.ChannelPaymentIntent,
		Status:     domain.PaymentLinkActive,
	}
}

func TestCreateLink(t *testing.T) {
	f := newPaymentFixture(t)

	link, err := f.svc.CreateLink(context.Background(), domain.PaymentLink{
		ProfileID: "model-1",
		Title:     "Lash lift",
		Amount:    d("250.005"),
		Currency:  "AED",
	})
	require.NoError(t, err)
	require.NotEmpty(t, link.ID)
	require.NotEmpty(t, link.Slug)
	require.Equal(t, domain.PaymentLinkActive, link.Status)
	require.Equal(t, domain.ChannelPaymentIntent, link.FeeChannel)
	requireDec(t, "250.01", link.Amount)

	stored, err := f.links.GetBySlug(context.Background(), link.Slug)
	require.NoError(t, err)
	require.Equal(t, link.ID, stored.ID)
}

func TestCreateLinkRejectsBadInput(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateLink(ctx, domain.PaymentLink{Title: "Free", Amount: d("0")})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.CreateLink(ctx, domain.PaymentLink{Amount: d("50")})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.CreateLink(ctx, domain.PaymentLink{
		Title: "Odd channel", Amount: d("50"), FeeChannel: domain.FeeChannel("vip"),
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenLink(t *testing.T) {
	f := newPaymentFixture(t, activeLink())

	link, breakdown, err := f.svc.OpenLink(context.Background(), "glam")
	require.NoError(t, err)
	require.Equal(t, "link-1", link.ID)
	requireDec(t, "100", breakdown.OriginalAmount)
	requireDec(t, "10", breakdown.FeeAmount)
	requireDec(t, "110", breakdown.TotalAmount)
}

func TestOpenLinkClosedStates(t *testing.T) {
	paid := activeLink()
	paid.Status = domain.PaymentLinkPaid

	past := time.Now().UTC().Add(-time.Hour)
	expired := activeLink()
	expired.ID, expired.Slug = "link-2", "old"
	expired.ExpiresAt = &past

	f := newPaymentFixture(t, paid, expired)
	ctx := context.Background()

	_, _, err := f.svc.OpenLink(ctx, "glam")
	require.ErrorIs(t, err, domain.ErrConflict)

	_, _, err = f.svc.OpenLink(ctx, "old")
	require.ErrorIs(t, err, domain.ErrConflict)

	_, _, err = f.svc.OpenLink(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateIntentConvertsChargeToUSD(t *testing.T) {
	f := newPaymentFixture(t, activeLink())

	tx, intent, err := f.svc.CreateIntent(context.Background(), "glam", nil)
	require.NoError(t, err)
	require.Equal(t, "pi_1", intent.ID)
	require.Equal(t, "pi_1", tx.ProcessorRef)

	// The row stays in AED with the fee added on top.
	require.Equal(t, "AED", tx.Currency)
	requireDec(t, "110", tx.GrossAmount)
	requireDec(t, "10", tx.FeeAmount)
	requireDec(t, "100", tx.NetAmount)
	require.Equal(t, domain.TransactionPending, tx.Status)
	require.Equal(t, string(domain.ChannelPaymentIntent), tx.Metadata["fee_channel"])

	// Stripe is charged in USD at the pegged rate.
	require.Equal(t, "USD", f.stripe.lastCurrency)
	requireDec(t, "29.95", f.stripe.lastAmount)

	stored, err := f.txs.GetByProcessorRef(context.Background(), domain.ProcessorStripe, "pi_1")
	require.NoError(t, err)
	require.Equal(t, tx.ID, stored.ID)
}

func TestCreateIntentRateLimited(t *testing.T) {
	f := newPaymentFixture(t, activeLink())
	f.limiter.deny["payments:glam"] = true

	_, _, err := f.svc.CreateIntent(context.Background(), "glam", nil)
	require.ErrorIs(t, err, domain.ErrRateLimited)
	require.Empty(t, f.txs.rows)
}

func TestCreateCheckoutSessionUsesCheckoutRate(t *testing.T) {
	f := newPaymentFixture(t, activeLink())

	tx, session, err := f.svc.CreateCheckoutSession(context.Background(), "glam", nil, "https://ok", "https://no")
	require.NoError(t, err)
	require.Equal(t, "cs_sess_1", session.ID)
	requireDec(t, "112", tx.GrossAmount)
	requireDec(t, "12", tx.FeeAmount)
}

func TestCreateCrossmintOrderUsesCrossmintRate(t *testing.T) {
	f := newPaymentFixture(t, activeLink())

	tx, order, err := f.svc.CreateCrossmintOrder(context.Background(), "glam", nil, "payer@example.com")
	require.NoError(t, err)
	require.Equal(t, "order_1", order.OrderID)
	require.Equal(t, "order_1", tx.ProcessorRef)
	require.Equal(t, domain.ProcessorCrossmint, tx.Processor)
	requireDec(t, "108", tx.GrossAmount)
}

func pendingTx(ref string) domain.Transaction {
	linkID := "link-1"
	return domain.Transaction{
		ID:           "tx-1",
		LinkID:       &linkID,
		ProfileID:    "model-1",
		Processor:    domain.ProcessorStripe,
		ProcessorRef: ref,
		Currency:     "AED",
		GrossAmount:  d("110"),
		FeeAmount:    d("10"),
		NetAmount:    d("100"),
		Status:       domain.TransactionPending,
	}
}

func TestCompleteByProcessorRefSettles(t *testing.T) {
	f := newPaymentFixture(t, activeLink())
	require.NoError(t, f.txs.Create(context.Background(), pendingTx("pi_1")))

	err := f.svc.CompleteByProcessorRef(context.Background(), domain.ProcessorStripe, "pi_1")
	require.NoError(t, err)

	tx, err := f.txs.GetByID(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, domain.TransactionSucceeded, tx.Status)

	// Net lands in the professional's ledger; the link closes.
	require.Len(t, f.wallet.entries, 1)
	require.Equal(t, domain.WalletCredit, f.wallet.entries[0].Type)
	require.Equal(t, "transaction:tx-1", f.wallet.entries[0].Reference)
	requireDec(t, "100", f.wallet.entries[0].Amount)

	link, err := f.links.GetByID(context.Background(), "link-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentLinkPaid, link.Status)

	require.Contains(t, f.bus.topics(), "platform")
}

func TestCompleteByProcessorRefReplayIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t, activeLink())
	require.NoError(t, f.txs.Create(context.Background(), pendingTx("pi_1")))

	require.NoError(t, f.svc.CompleteByProcessorRef(context.Background(), domain.ProcessorStripe, "pi_1"))
	require.NoError(t, f.svc.CompleteByProcessorRef(context.Background(), domain.ProcessorStripe, "pi_1"))

	require.Len(t, f.wallet.entries, 1, "replay must not double-credit")
}

func TestCompleteByProcessorRefRefusesTerminal(t *testing.T) {
	f := newPaymentFixture(t)
	tx := pendingTx("pi_1")
	tx.Status = domain.TransactionFailed
	require.NoError(t, f.txs.Create(context.Background(), tx))

	err := f.svc.CompleteByProcessorRef(context.Background(), domain.ProcessorStripe, "pi_1")
	require.ErrorIs(t, err, domain.ErrConflict)
	require.Empty(t, f.wallet.entries)
}

func TestFailByProcessorRef(t *testing.T) {
	f := newPaymentFixture(t)
	require.NoError(t, f.txs.Create(context.Background(), pendingTx("pi_1")))

	err := f.svc.FailByProcessorRef(context.Background(), domain.ProcessorStripe, "pi_1", "card declined")
	require.NoError(t, err)

	tx, err := f.txs.GetByID(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, domain.TransactionFailed, tx.Status)
	require.Equal(t, "card declined", tx.FailureReason)

	// A second delivery of the same failure is acknowledged silently.
	require.NoError(t, f.svc.FailByProcessorRef(context.Background(), domain.ProcessorStripe, "pi_1", "again"))
	tx, _ = f.txs.GetByID(context.Background(), "tx-1")
	require.Equal(t, "card declined", tx.FailureReason)
}

func TestRefundByProcessorRef(t *testing.T) {
	f := newPaymentFixture(t)
	tx := pendingTx("pi_1")
	tx.Status = domain.TransactionSucceeded
	require.NoError(t, f.txs.Create(context.Background(), tx))

	err := f.svc.RefundByProcessorRef(context.Background(), domain.ProcessorStripe, "pi_1")
	require.NoError(t, err)

	got, _ := f.txs.GetByID(context.Background(), "tx-1")
	require.Equal(t, domain.TransactionRefunded, got.Status)

	require.Len(t, f.wallet.entries, 1)
	require.Equal(t, domain.WalletDebit, f.wallet.entries[0].Type)
	requireDec(t, "100", f.wallet.entries[0].Amount)

	// Replay acks, pending refuses.
	require.NoError(t, f.svc.RefundByProcessorRef(context.Background(), domain.ProcessorStripe, "pi_1"))
	require.Len(t, f.wallet.entries, 1)
}

func TestRefundRequiresSucceeded(t *testing.T) {
	f := newPaymentFixture(t)
	require.NoError(t, f.txs.Create(context.Background(), pendingTx("pi_1")))

	err := f.svc.RefundByProcessorRef(context.Background(), domain.ProcessorStripe, "pi_1")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestManualComplete(t *testing.T) {
	f := newPaymentFixture(t, activeLink())
	require.NoError(t, f.txs.Create(context.Background(), pendingTx("pi_1")))

	tx, err := f.svc.ManualComplete(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, domain.TransactionSucceeded, tx.Status)
	require.Equal(t, domain.ProcessorManual, tx.Processor)
	require.Len(t, f.wallet.entries, 1)

	_, err = f.svc.ManualComplete(context.Background(), "tx-1")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestUpdateTransactionTransitions(t *testing.T) {
	f := newPaymentFixture(t, activeLink())
	require.NoError(t, f.txs.Create(context.Background(), pendingTx("pi_1")))
	ctx := context.Background()

	tx, err := f.svc.UpdateTransaction(ctx, "tx-1", domain.TransactionProcessing, map[string]string{"note": "3ds"})
	require.NoError(t, err)
	require.Equal(t, domain.TransactionProcessing, tx.Status)
	require.Equal(t, "3ds", tx.Metadata["note"])

	tx, err = f.svc.UpdateTransaction(ctx, "tx-1", domain.TransactionSucceeded, nil)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionSucceeded, tx.Status)
	require.Len(t, f.wallet.entries, 1, "success routes through settle")

	_, err = f.svc.UpdateTransaction(ctx, "tx-1", domain.TransactionPending, nil)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestExpireDueLinks(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := activeLink()
	due.ExpiresAt = &past
	alive := activeLink()
	alive.ID, alive.Slug = "link-2", "fresh"
	alive.ExpiresAt = &future

	f := newPaymentFixture(t, due, alive)

	n, err := f.svc.ExpireDueLinks(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, _ := f.links.GetByID(context.Background(), "link-1")
	require.Equal(t, domain.PaymentLinkExpired, got.Status)
	got, _ = f.links.GetByID(context.Background(), "link-2")
	require.Equal(t, domain.PaymentLinkActive, got.Status)
}
