package payout

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// TransferClient submits Connect transfers. Implemented by the Stripe
// platform client.
type TransferClient interface {
	CreateTransfer(ctx context.Context, destAccount string, amount decimal.Decimal, currency, idempotencyKey string) (string, error)
}

// CryptoDisburser moves tokens to an external wallet. Implemented by
// the Crossmint platform client.
type CryptoDisburser interface {
	TransferToken(ctx context.Context, wallet string, amount decimal.Decimal, currency string) (string, error)
}

// AddressValidator checks and normalizes crypto destinations.
// Implemented by the treasury in the crypto package.
type AddressValidator interface {
	ValidAddress(addr string) bool
	ChecksumAddress(addr string) (string, error)
}

// Result is the outcome of one rail execution. Final means the money
// moved and the payout can be marked paid; otherwise it was queued for
// manual processing and stays in processing.
type Result struct {
	Ref   string
	Final bool
}

// Rail moves an unlocked payout over one withdrawal channel.
type Rail interface {
	Name() domain.PayoutRail
	// Destination validates the profile's target for this rail and
	// returns the snapshot to freeze onto the payout row.
	Destination(p domain.Profile) (string, error)
	Execute(ctx context.Context, po domain.Payout) (Result, error)
}

// Registry manages the named rail collection. Safe for concurrent use.
type Registry struct {
	rails map[domain.PayoutRail]Rail
	mu    sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{rails: make(map[domain.PayoutRail]Rail)}
}

// Register adds a rail, replacing any previous registration.
func (r *Registry) Register(rail Rail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rails[rail.Name()] = rail
}

// Get retrieves a rail by name.
func (r *Registry) Get(name domain.PayoutRail) (Rail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rail, ok := r.rails[name]
	if !ok {
		return nil, fmt.Errorf("payout: rail %q not registered: %w", name, domain.ErrNotFound)
	}
	return rail, nil
}

// List returns the registered rail names in sorted order.
func (r *Registry) List() []domain.PayoutRail {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]domain.PayoutRail, 0, len(r.rails))
	for n := range r.rails {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// StripeRail pays out through a Connect transfer; Stripe then settles
// to the professional's bank account on their own payout schedule.
type StripeRail struct {
	transfers TransferClient
}

// NewStripeRail creates the bank-transfer rail.
func NewStripeRail(transfers TransferClient) *StripeRail {
	return &StripeRail{transfers: transfers}
}

func (r *StripeRail) Name() domain.PayoutRail { return domain.RailBankTransfer }

func (r *StripeRail) Destination(p domain.Profile) (string, error) {
	if p.StripeAccountID == "" {
		return "", fmt.Errorf("payout: profile %s has no connected Stripe account: %w", p.ID, domain.ErrConflict)
	}
	return p.StripeAccountID, nil
}

func (r *StripeRail) Execute(ctx context.Context, po domain.Payout) (Result, error) {
	ref, err := r.transfers.CreateTransfer(ctx, po.Destination, po.Amount, po.Currency, "payout_"+po.ID)
	if err != nil {
		return Result{}, fmt.Errorf("payout: stripe transfer: %w", err)
	}
	return Result{Ref: ref, Final: true}, nil
}

// PayPalRail queues payouts for the manual PayPal batch run; there is
// no API integration, so execution never finalizes here.
type PayPalRail struct{}

// NewPayPalRail creates the PayPal rail.
func NewPayPalRail() *PayPalRail { return &PayPalRail{} }

func (r *PayPalRail) Name() domain.PayoutRail { return domain.RailPayPal }

func (r *PayPalRail) Destination(p domain.Profile) (string, error) {
	if p.PayPalEmail == "" || !strings.Contains(p.PayPalEmail, "@") {
		return "", fmt.Errorf("payout: profile %s has no usable PayPal email: %w", p.ID, domain.ErrConflict)
	}
	return p.PayPalEmail, nil
}

func (r *PayPalRail) Execute(ctx context.Context, po domain.Payout) (Result, error) {
	return Result{Ref: "manual:" + po.ID, Final: false}, nil
}

// CryptoRail disburses through Crossmint to an EIP-55 wallet address.
type CryptoRail struct {
	validator AddressValidator
	disburser CryptoDisburser
}

// NewCryptoRail creates the crypto rail.
func NewCryptoRail(validator AddressValidator, disburser CryptoDisburser) *CryptoRail {
	return &CryptoRail{validator: validator, disburser: disburser}
}

func (r *CryptoRail) Name() domain.PayoutRail { return domain.RailCrypto }

func (r *CryptoRail) Destination(p domain.Profile) (string, error) {
	if !r.validator.ValidAddress(p.WalletAddress) {
		return "", fmt.Errorf("payout: profile %s wallet %q is not a valid address: %w", p.ID, p.WalletAddress, domain.ErrConflict)
	}
	return r.validator.ChecksumAddress(p.WalletAddress)
}

func (r *CryptoRail) Execute(ctx context.Context, po domain.Payout) (Result, error) {
	ref, err := r.disburser.TransferToken(ctx, po.Destination, po.Amount, po.Currency)
	if err != nil {
		return Result{}, fmt.Errorf("payout: crossmint transfer: %w", err)
	}
	return Result{Ref: ref, Final: true}, nil
}
