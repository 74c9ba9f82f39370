package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/crypto"
	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/platform/crossmint"
	"github.com/decodebeauty/decode-server/internal/platform/stripe"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(d(want)), "got %s want %s", got, want)
}

// fakeProfiles is an in-memory ProfileStore.
type fakeProfiles struct {
	rows map[string]domain.Profile
}

func newFakeProfiles(ps ...domain.Profile) *fakeProfiles {
	s := &fakeProfiles{rows: map[string]domain.Profile{}}
	for _, p := range ps {
		s.rows[p.ID] = p
	}
	return s
}

func (s *fakeProfiles) Create(ctx context.Context, p domain.Profile) error {
	s.rows[p.ID] = p
	return nil
}
func (s *fakeProfiles) Update(ctx context.Context, p domain.Profile) error {
	if _, ok := s.rows[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.rows[p.ID] = p
	return nil
}
func (s *fakeProfiles) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	p, ok := s.rows[id]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return p, nil
}
func (s *fakeProfiles) GetByEmail(ctx context.Context, email string) (domain.Profile, error) {
	for _, p := range s.rows {
		if p.Email == email {
			return p, nil
		}
	}
	return domain.Profile{}, domain.ErrNotFound
}
func (s *fakeProfiles) GetByStripeAccount(ctx context.Context, accountID string) (domain.Profile, error) {
	for _, p := range s.rows {
		if p.StripeAccountID == accountID {
			return p, nil
		}
	}
	return domain.Profile{}, domain.ErrNotFound
}
func (s *fakeProfiles) SetEmailVerified(ctx context.Context, id string) error {
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.EmailVerified = true
	s.rows[id] = p
	return nil
}
func (s *fakeProfiles) SetPhoneVerified(ctx context.Context, id string) error {
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.PhoneVerified = true
	s.rows[id] = p
	return nil
}
func (s *fakeProfiles) SetStripeAccount(ctx context.Context, id, accountID string) error {
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.StripeAccountID = accountID
	s.rows[id] = p
	return nil
}
func (s *fakeProfiles) Count(ctx context.Context) (int64, error) {
	return int64(len(s.rows)), nil
}

// fakeLinks is an in-memory PaymentLinkStore.
type fakeLinks struct {
	rows map[string]domain.PaymentLink
}

func newFakeLinks(ls ...domain.PaymentLink) *fakeLinks {
	s := &fakeLinks{rows: map[string]domain.PaymentLink{}}
	for _, l := range ls {
		s.rows[l.ID] = l
	}
	return s
}

func (s *fakeLinks) Create(ctx context.Context, l domain.PaymentLink) error {
	s.rows[l.ID] = l
	return nil
}
func (s *fakeLinks) GetByID(ctx context.Context, id string) (domain.PaymentLink, error) {
	l, ok := s.rows[id]
	if !ok {
		return domain.PaymentLink{}, domain.ErrNotFound
	}
	return l, nil
}
func (s *fakeLinks) GetBySlug(ctx context.Context, slug string) (domain.PaymentLink, error) {
	for _, l := range s.rows {
		if l.Slug == slug {
			return l, nil
		}
	}
	return domain.PaymentLink{}, domain.ErrNotFound
}
func (s *fakeLinks) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.PaymentLink, error) {
	var out []domain.PaymentLink
	for _, l := range s.rows {
		if l.ProfileID == profileID {
			out = append(out, l)
		}
	}
	return out, nil
}
func (s *fakeLinks) UpdateStatus(ctx context.Context, id string, status domain.PaymentLinkStatus) error {
	l, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Status = status
	s.rows[id] = l
	return nil
}
func (s *fakeLinks) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, l := range s.rows {
		if l.Status == domain.PaymentLinkActive && l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
			l.Status = domain.PaymentLinkExpired
			s.rows[id] = l
			n++
		}
	}
	return n, nil
}

// fakeTxs is an in-memory TransactionStore.
type fakeTxs struct {
	rows      map[string]domain.Transaction
	createErr error
}

func newFakeTxs(ts ...domain.Transaction) *fakeTxs {
	s := &fakeTxs{rows: map[string]domain.Transaction{}}
	for _, t := range ts {
		s.rows[t.ID] = t
	}
	return s
}

func (s *fakeTxs) Create(ctx context.Context, t domain.Transaction) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.rows[t.ID] = t
	return nil
}
func (s *fakeTxs) GetByID(ctx context.Context, id string) (domain.Transaction, error) {
	t, ok := s.rows[id]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return t, nil
}
func (s *fakeTxs) GetByProcessorRef(ctx context.Context, processor domain.PaymentProcessor, ref string) (domain.Transaction, error) {
	for _, t := range s.rows {
		if t.Processor == processor && t.ProcessorRef == ref {
			return t, nil
		}
	}
	return domain.Transaction{}, domain.ErrNotFound
}
func (s *fakeTxs) UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus, failureReason string) error {
	t, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = status
	t.FailureReason = failureReason
	t.UpdatedAt = time.Now().UTC()
	if status == domain.TransactionSucceeded {
		at := t.UpdatedAt
		t.SucceededAt = &at
	}
	s.rows[id] = t
	return nil
}
func (s *fakeTxs) SetMetadata(ctx context.Context, id string, metadata map[string]string) error {
	t, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Metadata = metadata
	s.rows[id] = t
	return nil
}
func (s *fakeTxs) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range s.rows {
		if t.ProfileID == profileID {
			out = append(out, t)
		}
	}
	return out, nil
}
func (s *fakeTxs) ListByLink(ctx context.Context, linkID string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range s.rows {
		if t.LinkID != nil && *t.LinkID == linkID {
			out = append(out, t)
		}
	}
	return out, nil
}
func (s *fakeTxs) Count(ctx context.Context) (int64, error) { return int64(len(s.rows)), nil }

// fakeLedger is an in-memory WalletStore; balances are summed from the
// recorded entries like the real store does.
type fakeLedger struct {
	entries   []domain.WalletTransaction
	insertErr error
}

func (s *fakeLedger) Insert(ctx context.Context, t domain.WalletTransaction) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.entries = append(s.entries, t)
	return nil
}
func (s *fakeLedger) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.WalletTransaction, error) {
	var out []domain.WalletTransaction
	for _, e := range s.entries {
		if e.ProfileID == profileID {
			out = append(out, e)
		}
	}
	return out, nil
}
func (s *fakeLedger) Balance(ctx context.Context, profileID, currency string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range s.entries {
		if e.ProfileID == profileID && e.Currency == currency {
			sum = sum.Add(e.Signed())
		}
	}
	return sum, nil
}
func (s *fakeLedger) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WalletTransaction, error) {
	var out []domain.WalletTransaction
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}
func (s *fakeLedger) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	kept := s.entries[:0]
	var n int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return n, nil
}

// fakeAuctions is an in-memory AuctionStore.
type fakeAuctions struct {
	rows        map[string]domain.Auction
	settlements map[string]domain.Settlement
}

func newFakeAuctions(as ...domain.Auction) *fakeAuctions {
	s := &fakeAuctions{
		rows:        map[string]domain.Auction{},
		settlements: map[string]domain.Settlement{},
	}
	for _, a := range as {
		s.rows[a.ID] = a
	}
	return s
}

func (s *fakeAuctions) Create(ctx context.Context, a domain.Auction) error {
	s.rows[a.ID] = a
	return nil
}
func (s *fakeAuctions) GetByID(ctx context.Context, id string) (domain.Auction, error) {
	a, ok := s.rows[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, nil
}
func (s *fakeAuctions) Update(ctx context.Context, a domain.Auction) error {
	if _, ok := s.rows[a.ID]; !ok {
		return domain.ErrNotFound
	}
	s.rows[a.ID] = a
	return nil
}
func (s *fakeAuctions) UpdateStatus(ctx context.Context, id string, status domain.AuctionStatus) error {
	a, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Status = status
	s.rows[id] = a
	return nil
}
func (s *fakeAuctions) RecordBid(ctx context.Context, id string, price decimal.Decimal, bidderID string) error {
	a, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if a.Status != domain.AuctionOpen {
		return domain.ErrAuctionClosed
	}
	a.CurrentPrice = price
	a.BidCount++
	s.rows[id] = a
	return nil
}
func (s *fakeAuctions) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	var out []domain.Auction
	for _, a := range s.rows {
		if a.Status == domain.AuctionOpen {
			out = append(out, a)
		}
	}
	return out, nil
}
func (s *fakeAuctions) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Auction, error) {
	var out []domain.Auction
	for _, a := range s.rows {
		if a.Status == domain.AuctionOpen && a.EndsAt.Before(cutoff) {
			out = append(out, a)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (s *fakeAuctions) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.Auction, error) {
	var out []domain.Auction
	for _, a := range s.rows {
		if a.ProfileID == profileID {
			out = append(out, a)
		}
	}
	return out, nil
}
func (s *fakeAuctions) SaveSettlement(ctx context.Context, st domain.Settlement) error {
	if _, ok := s.settlements[st.AuctionID]; ok {
		return domain.ErrConflict
	}
	s.settlements[st.AuctionID] = st
	return nil
}
func (s *fakeAuctions) GetSettlement(ctx context.Context, auctionID string) (domain.Settlement, error) {
	st, ok := s.settlements[auctionID]
	if !ok {
		return domain.Settlement{}, domain.ErrNotFound
	}
	return st, nil
}
func (s *fakeAuctions) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	for _, a := range s.rows {
		if a.Status == domain.AuctionOpen {
			n++
		}
	}
	return n, nil
}

// fakeBids is an in-memory BidStore.
type fakeBids struct {
	rows []domain.Bid
}

func (s *fakeBids) Insert(ctx context.Context, b domain.Bid) error {
	s.rows = append(s.rows, b)
	return nil
}
func (s *fakeBids) ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	var out []domain.Bid
	for _, b := range s.rows {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Amount.GreaterThan(out[j].Amount) })
	return out, nil
}
func (s *fakeBids) Top(ctx context.Context, auctionID string) (domain.Bid, error) {
	bids, _ := s.ListByAuction(ctx, auctionID, domain.ListOpts{})
	if len(bids) == 0 {
		return domain.Bid{}, domain.ErrNotFound
	}
	return bids[0], nil
}
func (s *fakeBids) CountByAuction(ctx context.Context, auctionID string) (int64, error) {
	bids, _ := s.ListByAuction(ctx, auctionID, domain.ListOpts{})
	return int64(len(bids)), nil
}

// fakePayouts is an in-memory PayoutStore.
type fakePayouts struct {
	rows map[string]domain.Payout
}

func newFakePayouts(ps ...domain.Payout) *fakePayouts {
	s := &fakePayouts{rows: map[string]domain.Payout{}}
	for _, p := range ps {
		s.rows[p.ID] = p
	}
	return s
}

func (s *fakePayouts) Create(ctx context.Context, p domain.Payout) error {
	s.rows[p.ID] = p
	return nil
}
func (s *fakePayouts) GetByID(ctx context.Context, id string) (domain.Payout, error) {
	p, ok := s.rows[id]
	if !ok {
		return domain.Payout{}, domain.ErrNotFound
	}
	return p, nil
}
func (s *fakePayouts) UpdateStatus(ctx context.Context, id string, status domain.PayoutStatus, failureReason string) error {
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	p.FailureReason = failureReason
	s.rows[id] = p
	return nil
}
func (s *fakePayouts) SetProcessorRef(ctx context.Context, id, ref string) error {
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.ProcessorRef = ref
	s.rows[id] = p
	return nil
}
func (s *fakePayouts) MarkPaid(ctx context.Context, id, processorRef string, paidAt time.Time) error {
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = domain.PayoutPaid
	p.ProcessorRef = processorRef
	p.PaidAt = &paidAt
	s.rows[id] = p
	return nil
}
func (s *fakePayouts) AssignBatch(ctx context.Context, ids []string, batchID string) error {
	for _, id := range ids {
		p, ok := s.rows[id]
		if !ok {
			continue
		}
		p.BatchID = &batchID
		s.rows[id] = p
	}
	return nil
}
func (s *fakePayouts) SetUnlockState(ctx context.Context, id string, state domain.UnlockState) error {
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.UnlockState = state
	s.rows[id] = p
	return nil
}
func (s *fakePayouts) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.Payout, error) {
	var out []domain.Payout
	for _, p := range s.rows {
		if p.ProfileID == profileID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (s *fakePayouts) ListPending(ctx context.Context, limit int) ([]domain.Payout, error) {
	var out []domain.Payout
	for _, p := range s.rows {
		if p.Status == domain.PayoutPending {
			out = append(out, p)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (s *fakePayouts) CountPending(ctx context.Context) (int64, error) {
	ps, _ := s.ListPending(ctx, 0)
	return int64(len(ps)), nil
}

// fakeVideos is an in-memory VideoTokenStore.
type fakeVideos struct {
	rows map[string]domain.VideoToken
}

func newFakeVideos(ts ...domain.VideoToken) *fakeVideos {
	s := &fakeVideos{rows: map[string]domain.VideoToken{}}
	for _, t := range ts {
		s.rows[t.ID] = t
	}
	return s
}

func (s *fakeVideos) Create(ctx context.Context, t domain.VideoToken) error {
	s.rows[t.ID] = t
	return nil
}
func (s *fakeVideos) GetByToken(ctx context.Context, token string) (domain.VideoToken, error) {
	for _, t := range s.rows {
		if t.Token == token {
			return t, nil
		}
	}
	return domain.VideoToken{}, domain.ErrNotFound
}
func (s *fakeVideos) GetByAuction(ctx context.Context, auctionID string) (domain.VideoToken, error) {
	for _, t := range s.rows {
		if t.AuctionID == auctionID {
			return t, nil
		}
	}
	return domain.VideoToken{}, domain.ErrNotFound
}
func (s *fakeVideos) MarkUploaded(ctx context.Context, id, storageKey string, at time.Time) error {
	t, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.StorageKey = storageKey
	t.UploadedAt = &at
	s.rows[id] = t
	return nil
}
func (s *fakeVideos) MarkWatched(ctx context.Context, id string, at time.Time) error {
	t, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.WatchedAt = &at
	s.rows[id] = t
	return nil
}
func (s *fakeVideos) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.VideoToken, error) {
	var out []domain.VideoToken
	for _, t := range s.rows {
		if !t.HasVideo() && t.Expired(now) {
			out = append(out, t)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeEvents is an in-memory WebhookEventStore with the same
// (provider, provider_event_id) dedup the real store enforces.
type fakeEvents struct {
	rows []domain.WebhookEvent
}

func (s *fakeEvents) Insert(ctx context.Context, e domain.WebhookEvent) error {
	for _, r := range s.rows {
		if r.Provider == e.Provider && r.ProviderEventID == e.ProviderEventID {
			return domain.ErrDuplicateEvent
		}
	}
	s.rows = append(s.rows, e)
	return nil
}
func (s *fakeEvents) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	for i, r := range s.rows {
		if r.ID == id {
			s.rows[i].ProcessedAt = &at
			s.rows[i].ProcessingError = ""
			return nil
		}
	}
	return domain.ErrNotFound
}
func (s *fakeEvents) MarkFailed(ctx context.Context, id, processingError string) error {
	for i, r := range s.rows {
		if r.ID == id {
			s.rows[i].ProcessingError = processingError
			return nil
		}
	}
	return domain.ErrNotFound
}
func (s *fakeEvents) GetByProviderEventID(ctx context.Context, provider domain.WebhookProvider, eventID string) (domain.WebhookEvent, error) {
	for _, r := range s.rows {
		if r.Provider == provider && r.ProviderEventID == eventID {
			return r, nil
		}
	}
	return domain.WebhookEvent{}, domain.ErrNotFound
}
func (s *fakeEvents) ListUnprocessed(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	var out []domain.WebhookEvent
	for _, r := range s.rows {
		if r.ProcessedAt == nil {
			out = append(out, r)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (s *fakeEvents) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (s *fakeEvents) Count(ctx context.Context) (int64, error) { return int64(len(s.rows)), nil }

// fakeAudit records audit events for assertion.
type fakeAudit struct {
	events []string
}

func (s *fakeAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	s.events = append(s.events, event)
	return nil
}
func (s *fakeAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

// memAuctionCache is an in-memory AuctionCache.
type memAuctionCache struct {
	rows map[string]domain.Auction
}

func newMemAuctionCache() *memAuctionCache {
	return &memAuctionCache{rows: map[string]domain.Auction{}}
}

func (c *memAuctionCache) Set(ctx context.Context, a domain.Auction) error {
	c.rows[a.ID] = a
	return nil
}
func (c *memAuctionCache) Get(ctx context.Context, id string) (domain.Auction, error) {
	a, ok := c.rows[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, nil
}
func (c *memAuctionCache) Invalidate(ctx context.Context, id string) error {
	delete(c.rows, id)
	return nil
}

// memBidCache is an in-memory BidCache.
type memBidCache struct {
	rows map[string][]domain.Bid
}

func newMemBidCache() *memBidCache { return &memBidCache{rows: map[string][]domain.Bid{}} }

func (c *memBidCache) Push(ctx context.Context, b domain.Bid, keep int) error {
	bids := append([]domain.Bid{b}, c.rows[b.AuctionID]...)
	if keep > 0 && len(bids) > keep {
		bids = bids[:keep]
	}
	c.rows[b.AuctionID] = bids
	return nil
}
func (c *memBidCache) Recent(ctx context.Context, auctionID string, limit int) ([]domain.Bid, error) {
	bids := c.rows[auctionID]
	if limit > 0 && len(bids) > limit {
		bids = bids[:limit]
	}
	return bids, nil
}

// memOTPCache is an in-memory OTPCache.
type memOTPCache struct {
	rows map[string]domain.OTPChallenge
}

func newMemOTPCache() *memOTPCache { return &memOTPCache{rows: map[string]domain.OTPChallenge{}} }

func otpKey(profileID string, purpose domain.OTPPurpose) string {
	return profileID + "|" + string(purpose)
}

func (c *memOTPCache) Put(ctx context.Context, ch domain.OTPChallenge) error {
	c.rows[otpKey(ch.ProfileID, ch.Purpose)] = ch
	return nil
}
func (c *memOTPCache) Get(ctx context.Context, profileID string, purpose domain.OTPPurpose) (domain.OTPChallenge, error) {
	ch, ok := c.rows[otpKey(profileID, purpose)]
	if !ok {
		return domain.OTPChallenge{}, domain.ErrNotFound
	}
	return ch, nil
}
func (c *memOTPCache) IncrementAttempts(ctx context.Context, profileID string, purpose domain.OTPPurpose) (int, error) {
	key := otpKey(profileID, purpose)
	ch, ok := c.rows[key]
	if !ok {
		return 0, domain.ErrNotFound
	}
	ch.Attempts++
	c.rows[key] = ch
	return ch.Attempts, nil
}
func (c *memOTPCache) Delete(ctx context.Context, profileID string, purpose domain.OTPPurpose) error {
	delete(c.rows, otpKey(profileID, purpose))
	return nil
}

// memRateCache is an in-memory RateCache.
type memRateCache struct {
	rows map[string]domain.ExchangeRate
}

func newMemRateCache() *memRateCache { return &memRateCache{rows: map[string]domain.ExchangeRate{}} }

func (c *memRateCache) SetRate(ctx context.Context, r domain.ExchangeRate) error {
	c.rows[r.Base+"/"+r.Quote] = r
	return nil
}
func (c *memRateCache) GetRate(ctx context.Context, base, quote string) (domain.ExchangeRate, error) {
	r, ok := c.rows[base+"/"+quote]
	if !ok {
		return domain.ExchangeRate{}, domain.ErrNotFound
	}
	return r, nil
}

// fakeLimiter counts Allow calls per key and denies the keys listed in
// deny.
type fakeLimiter struct {
	calls []string
	deny  map[string]bool
}

func (l *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.calls = append(l.calls, key)
	if l.deny[key] {
		return false, nil
	}
	return true, nil
}
func (l *fakeLimiter) Wait(ctx context.Context, key string) error { return nil }

// fakeLocks hands out no-op unlocks and records acquired keys.
type fakeLocks struct {
	held       []string
	acquireErr error
}

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.acquireErr != nil {
		return nil, l.acquireErr
	}
	l.held = append(l.held, key)
	return func() {}, nil
}

type busMsg struct {
	topic   string
	payload []byte
}

// fakeBus records published and stream-appended messages.
type fakeBus struct {
	published []busMsg
	appended  []busMsg
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.published = append(b.published, busMsg{topic: channel, payload: payload})
	return nil
}
func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}
func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.appended = append(b.appended, busMsg{topic: stream, payload: payload})
	return nil
}
func (b *fakeBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// topics returns the published topics in order, for event assertions.
func (b *fakeBus) topics() []string {
	var out []string
	for _, m := range b.published {
		out = append(out, m.topic)
	}
	return out
}

// fakeBlobs is an in-memory blob store implementing BlobWriter and
// BlobReader.
type fakeBlobs struct {
	objects map[string][]byte
	putErr  error
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: map[string][]byte{}} }

func (b *fakeBlobs) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = buf
	return nil
}
func (b *fakeBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return b.Put(ctx, path, data, "")
}
func (b *fakeBlobs) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	buf, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}
func (b *fakeBlobs) GetRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	buf, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	end := offset + length
	if end > int64(len(buf)) {
		end = int64(len(buf))
	}
	return io.NopCloser(bytes.NewReader(buf[offset:end])), nil
}
func (b *fakeBlobs) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for path, buf := range b.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, domain.BlobInfo{Path: path, Size: int64(len(buf))})
		}
	}
	return out, nil
}
func (b *fakeBlobs) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

// fakeStripe is a canned StripeGateway.
type fakeStripe struct {
	intent       stripe.APIPaymentIntent
	session      stripe.APICheckoutSession
	err          error
	lastAmount   decimal.Decimal
	lastCurrency string
}

func (g *fakeStripe) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, idempotencyKey string, metadata map[string]string) (stripe.APIPaymentIntent, error) {
	g.lastAmount, g.lastCurrency = amount, currency
	return g.intent, g.err
}
func (g *fakeStripe) CreateCheckoutSession(ctx context.Context, amount decimal.Decimal, currency, productName, successURL, cancelURL, idempotencyKey string, metadata map[string]string) (stripe.APICheckoutSession, error) {
	g.lastAmount, g.lastCurrency = amount, currency
	return g.session, g.err
}

// fakeCrossmintGW is a canned CrossmintGateway.
type fakeCrossmintGW struct {
	order        crossmint.APIOrder
	err          error
	lastAmount   decimal.Decimal
	lastCurrency string
}

func (g *fakeCrossmintGW) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description, receiptEmail string) (crossmint.APIOrder, error) {
	g.lastAmount, g.lastCurrency = amount, currency
	return g.order, g.err
}

func stripeAccount() stripe.APIAccount {
	return stripe.APIAccount{ID: "acct_1", ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}
}

// fakeConnect is a canned ConnectGateway.
type fakeConnect struct {
	account     stripe.APIAccount
	session     stripe.APIAccountSession
	balance     stripe.Balance
	transferRef string
	err         error
	created     []string // emails passed to CreateAccount
	transfers   []decimal.Decimal
}

func (g *fakeConnect) CreateAccount(ctx context.Context, email, country string) (stripe.APIAccount, error) {
	g.created = append(g.created, email)
	return g.account, g.err
}
func (g *fakeConnect) GetAccount(ctx context.Context, accountID string) (stripe.APIAccount, error) {
	return g.account, g.err
}
func (g *fakeConnect) CreateAccountSession(ctx context.Context, accountID string) (stripe.APIAccountSession, error) {
	return g.session, g.err
}
func (g *fakeConnect) GetAccountBalance(ctx context.Context, accountID string) (stripe.Balance, error) {
	return g.balance, g.err
}
func (g *fakeConnect) CreateTransfer(ctx context.Context, destAccount string, amount decimal.Decimal, currency, idempotencyKey string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.transfers = append(g.transfers, amount)
	return g.transferRef, nil
}

// fakeSender records delivered OTP codes.
type fakeSender struct {
	codes []string
	err   error
}

func (s *fakeSender) SendOTP(ctx context.Context, destination, code string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.codes = append(s.codes, code)
	return "msg-" + code, nil
}

// fakeVerifier is a SignatureVerifier with a fixed verdict.
type fakeVerifier struct {
	err error
}

func (v *fakeVerifier) Verify(payload []byte, signature string) error { return v.err }

// fakeSigner is a canned PayoutAuthSigner.
type fakeSigner struct {
	sig string
	err error
}

func (s *fakeSigner) SignPayoutAuth(p crypto.PayoutAuthPayload) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.sig, nil
}
