package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ProfileStore persists platform accounts.
type ProfileStore interface {
	Create(ctx context.Context, p Profile) error
	Update(ctx context.Context, p Profile) error
	GetByID(ctx context.Context, id string) (Profile, error)
	GetByEmail(ctx context.Context, email string) (Profile, error)
	GetByStripeAccount(ctx context.Context, accountID string) (Profile, error)
	SetEmailVerified(ctx context.Context, id string) error
	SetPhoneVerified(ctx context.Context, id string) error
	SetStripeAccount(ctx context.Context, id, accountID string) error
	Count(ctx context.Context) (int64, error)
}

// PaymentLinkStore persists shareable charge requests.
type PaymentLinkStore interface {
	Create(ctx context.Context, l PaymentLink) error
	GetByID(ctx context.Context, id string) (PaymentLink, error)
	GetBySlug(ctx context.Context, slug string) (PaymentLink, error)
	ListByProfile(ctx context.Context, profileID string, opts ListOpts) ([]PaymentLink, error)
	UpdateStatus(ctx context.Context, id string, status PaymentLinkStatus) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// TransactionStore persists payment attempts and captures.
type TransactionStore interface {
	Create(ctx context.Context, t Transaction) error
	GetByID(ctx context.Context, id string) (Transaction, error)
	GetByProcessorRef(ctx context.Context, processor PaymentProcessor, ref string) (Transaction, error)
	UpdateStatus(ctx context.Context, id string, status TransactionStatus, failureReason string) error
	SetMetadata(ctx context.Context, id string, metadata map[string]string) error
	ListByProfile(ctx context.Context, profileID string, opts ListOpts) ([]Transaction, error)
	ListByLink(ctx context.Context, linkID string) ([]Transaction, error)
	Count(ctx context.Context) (int64, error)
}

// AuctionStore persists auctions, their settlement results included.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) error
	GetByID(ctx context.Context, id string) (Auction, error)
	Update(ctx context.Context, a Auction) error
	UpdateStatus(ctx context.Context, id string, status AuctionStatus) error
	RecordBid(ctx context.Context, id string, price decimal.Decimal, bidderID string) error
	ListOpen(ctx context.Context, opts ListOpts) ([]Auction, error)
	ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Auction, error)
	ListByProfile(ctx context.Context, profileID string, opts ListOpts) ([]Auction, error)
	SaveSettlement(ctx context.Context, s Settlement) error
	GetSettlement(ctx context.Context, auctionID string) (Settlement, error)
	CountOpen(ctx context.Context) (int64, error)
}

// BidStore persists the append-only bid history.
type BidStore interface {
	Insert(ctx context.Context, b Bid) error
	ListByAuction(ctx context.Context, auctionID string, opts ListOpts) ([]Bid, error)
	Top(ctx context.Context, auctionID string) (Bid, error)
	CountByAuction(ctx context.Context, auctionID string) (int64, error)
}

// PayoutStore persists withdrawal requests.
type PayoutStore interface {
	Create(ctx context.Context, p Payout) error
	GetByID(ctx context.Context, id string) (Payout, error)
	UpdateStatus(ctx context.Context, id string, status PayoutStatus, failureReason string) error
	SetProcessorRef(ctx context.Context, id, ref string) error
	MarkPaid(ctx context.Context, id, processorRef string, paidAt time.Time) error
	AssignBatch(ctx context.Context, ids []string, batchID string) error
	SetUnlockState(ctx context.Context, id string, state UnlockState) error
	ListByProfile(ctx context.Context, profileID string, opts ListOpts) ([]Payout, error)
	ListPending(ctx context.Context, limit int) ([]Payout, error)
	CountPending(ctx context.Context) (int64, error)
}

// WalletStore persists the append-only earnings ledger.
type WalletStore interface {
	Insert(ctx context.Context, t WalletTransaction) error
	ListByProfile(ctx context.Context, profileID string, opts ListOpts) ([]WalletTransaction, error)
	Balance(ctx context.Context, profileID, currency string) (decimal.Decimal, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]WalletTransaction, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// VideoTokenStore persists time-boxed upload credentials.
type VideoTokenStore interface {
	Create(ctx context.Context, t VideoToken) error
	GetByToken(ctx context.Context, token string) (VideoToken, error)
	GetByAuction(ctx context.Context, auctionID string) (VideoToken, error)
	MarkUploaded(ctx context.Context, id, storageKey string, at time.Time) error
	MarkWatched(ctx context.Context, id string, at time.Time) error
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]VideoToken, error)
}

// WebhookEventStore persists every inbound processor event.
// Insert returns ErrDuplicateEvent when (provider, provider_event_id)
// was seen before.
type WebhookEventStore interface {
	Insert(ctx context.Context, e WebhookEvent) error
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, processingError string) error
	GetByProviderEventID(ctx context.Context, provider WebhookProvider, eventID string) (WebhookEvent, error)
	ListUnprocessed(ctx context.Context, limit int) ([]WebhookEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// FeePolicyStore persists per-channel fee rates, the policy source for
// the fee schedule.
type FeePolicyStore interface {
	Upsert(ctx context.Context, p FeePolicy) error
	GetByChannel(ctx context.Context, channel FeeChannel) (FeePolicy, error)
	List(ctx context.Context) ([]FeePolicy, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
