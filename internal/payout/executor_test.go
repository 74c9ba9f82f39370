package payout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
)

type fakePayoutStore struct {
	statuses map[string]domain.PayoutStatus
	reasons  map[string]string
	refs     map[string]string
	paid     map[string]string
}

func newFakePayoutStore() *fakePayoutStore {
	return &fakePayoutStore{
		statuses: map[string]domain.PayoutStatus{},
		reasons:  map[string]string{},
		refs:     map[string]string{},
		paid:     map[string]string{},
	}
}

func (s *fakePayoutStore) Create(ctx context.Context, p domain.Payout) error { return nil }
func (s *fakePayoutStore) GetByID(ctx context.Context, id string) (domain.Payout, error) {
	return domain.Payout{}, domain.ErrNotFound
}
func (s *fakePayoutStore) UpdateStatus(ctx context.Context, id string, st domain.PayoutStatus, reason string) error {
	s.statuses[id] = st
	s.reasons[id] = reason
	return nil
}
func (s *fakePayoutStore) SetProcessorRef(ctx context.Context, id, ref string) error {
	s.refs[id] = ref
	return nil
}
func (s *fakePayoutStore) MarkPaid(ctx context.Context, id, ref string, paidAt time.Time) error {
	s.statuses[id] = domain.PayoutPaid
	s.paid[id] = ref
	return nil
}
func (s *fakePayoutStore) AssignBatch(ctx context.Context, ids []string, batchID string) error {
	return nil
}
func (s *fakePayoutStore) SetUnlockState(ctx context.Context, id string, st domain.UnlockState) error {
	return nil
}
func (s *fakePayoutStore) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.Payout, error) {
	return nil, nil
}
func (s *fakePayoutStore) ListPending(ctx context.Context, limit int) ([]domain.Payout, error) {
	return nil, nil
}
func (s *fakePayoutStore) CountPending(ctx context.Context) (int64, error) { return 0, nil }

type fakeWalletStore struct {
	inserted []domain.WalletTransaction
}

func (s *fakeWalletStore) Insert(ctx context.Context, t domain.WalletTransaction) error {
	s.inserted = append(s.inserted, t)
	return nil
}
func (s *fakeWalletStore) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.WalletTransaction, error) {
	return nil, nil
}
func (s *fakeWalletStore) Balance(ctx context.Context, profileID, currency string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *fakeWalletStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WalletTransaction, error) {
	return nil, nil
}
func (s *fakeWalletStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeRail struct {
	name   domain.PayoutRail
	result Result
	err    error
}

func (r *fakeRail) Name() domain.PayoutRail { return r.name }
func (r *fakeRail) Destination(p domain.Profile) (string, error) {
	return "dest", nil
}
func (r *fakeRail) Execute(ctx context.Context, po domain.Payout) (Result, error) {
	return r.result, r.err
}

func testExecutor(t *testing.T, rails ...Rail) (*Executor, *fakePayoutStore, *fakeWalletStore) {
	t.Helper()
	reg := NewRegistry()
	for _, r := range rails {
		reg.Register(r)
	}
	ps := newFakePayoutStore()
	ws := &fakeWalletStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewExecutor(reg, ps, ws, nil, nil, logger), ps, ws
}

func pendingPayout(id string, rail domain.PayoutRail) domain.Payout {
	return domain.Payout{
		ID:        id,
		ProfileID: "prof-1",
		Amount:    decimal.RequireFromString("120.50"),
		Currency:  "AED",
		Rail:      rail,
		Status:    domain.PayoutPending,
	}
}

func TestExecuteBatchPays(t *testing.T) {
	ex, ps, ws := testExecutor(t, &fakeRail{
		name:   domain.RailBankTransfer,
		result: Result{Ref: "tr_123", Final: true},
	})

	res := ex.ExecuteBatch(context.Background(), "batch-1", []domain.Payout{
		pendingPayout("p1", domain.RailBankTransfer),
	})

	require.Equal(t, 1, res.Paid)
	require.Equal(t, domain.PayoutPaid, ps.statuses["p1"])
	require.Equal(t, "tr_123", ps.paid["p1"])
	require.Empty(t, ws.inserted, "no refund on success")
}

func TestExecuteBatchRefundsOnFailure(t *testing.T) {
	ex, ps, ws := testExecutor(t, &fakeRail{
		name: domain.RailBankTransfer,
		err:  errors.New("stripe says no"),
	})

	po := pendingPayout("p2", domain.RailBankTransfer)
	res := ex.ExecuteBatch(context.Background(), "batch-1", []domain.Payout{po})

	require.Equal(t, 1, res.Failed)
	require.Equal(t, domain.PayoutFailed, ps.statuses["p2"])
	require.Contains(t, ps.reasons["p2"], "stripe says no")

	require.Len(t, ws.inserted, 1)
	refund := ws.inserted[0]
	require.Equal(t, domain.WalletCredit, refund.Type)
	require.True(t, refund.Amount.Equal(po.Amount))
	require.Equal(t, "payout:p2", refund.Reference)
}

func TestExecuteBatchQueuesManualRails(t *testing.T) {
	ex, ps, ws := testExecutor(t, &fakeRail{
		name:   domain.RailPayPal,
		result: Result{Ref: "manual:p3", Final: false},
	})

	res := ex.ExecuteBatch(context.Background(), "batch-1", []domain.Payout{
		pendingPayout("p3", domain.RailPayPal),
	})

	require.Equal(t, 1, res.Queued)
	require.Equal(t, domain.PayoutProcessing, ps.statuses["p3"])
	require.Equal(t, "manual:p3", ps.refs["p3"])
	require.Empty(t, ws.inserted)
}

func TestExecuteBatchSkipsNonPending(t *testing.T) {
	ex, ps, _ := testExecutor(t, &fakeRail{
		name:   domain.RailBankTransfer,
		result: Result{Ref: "tr_999", Final: true},
	})

	po := pendingPayout("p4", domain.RailBankTransfer)
	po.Status = domain.PayoutPaid
	res := ex.ExecuteBatch(context.Background(), "batch-1", []domain.Payout{po})

	require.Equal(t, 1, res.Skipped)
	require.NotContains(t, ps.paid, "p4")
}

func TestExecuteBatchFailsUnregisteredRail(t *testing.T) {
	ex, ps, ws := testExecutor(t)

	res := ex.ExecuteBatch(context.Background(), "batch-1", []domain.Payout{
		pendingPayout("p5", domain.RailCrypto),
	})

	require.Equal(t, 1, res.Failed)
	require.Equal(t, domain.PayoutFailed, ps.statuses["p5"])
	require.Len(t, ws.inserted, 1)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeRail{name: domain.RailCrypto})
	reg.Register(&fakeRail{name: domain.RailBankTransfer})

	_, err := reg.Get(domain.RailPayPal)
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := reg.Get(domain.RailCrypto)
	require.NoError(t, err)
	require.Equal(t, domain.RailCrypto, got.Name())

	require.Equal(t, []domain.PayoutRail{domain.RailBankTransfer, domain.RailCrypto}, reg.List())
}

func TestRailDestinations(t *testing.T) {
	stripe := NewStripeRail(nil)
	_, err := stripe.Destination(domain.Profile{ID: "x"})
	require.Error(t, err)
	dest, err := stripe.Destination(domain.Profile{ID: "x", StripeAccountID: "acct_1"})
	require.NoError(t, err)
	require.Equal(t, "acct_1", dest)

	pp := NewPayPalRail()
	_, err = pp.Destination(domain.Profile{PayPalEmail: "not-an-email"})
	require.Error(t, err)
	dest, err = pp.Destination(domain.Profile{PayPalEmail: "pro@example.com"})
	require.NoError(t, err)
	require.Equal(t, "pro@example.com", dest)
}
