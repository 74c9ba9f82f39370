package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/fees"
	"github.com/decodebeauty/decode-server/internal/platform/crossmint"
	"github.com/decodebeauty/decode-server/internal/platform/stripe"
)

// StripeGateway is the slice of the Stripe client the payment flow uses.
type StripeGateway interface {
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, idempotencyKey string, metadata map[string]string) (stripe.APIPaymentIntent, error)
	CreateCheckoutSession(ctx context.Context, amount decimal.Decimal, currency, productName, successURL, cancelURL, idempotencyKey string, metadata map[string]string) (stripe.APICheckoutSession, error)
}

// CrossmintGateway is the slice of the Crossmint client the payment flow uses.
type CrossmintGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description, receiptEmail string) (crossmint.APIOrder, error)
}

// PaymentService owns payment links and the transaction lifecycle: it
// creates processor charges with the fee added on top, and on webhook
// confirmation credits the professional's ledger with the net amount.
type PaymentService struct {
	links     domain.PaymentLinkStore
	txs       domain.TransactionStore
	wallet    domain.WalletStore
	resolver  *fees.Resolver
	rates     *RateService
	stripe    StripeGateway
	crossmint CrossmintGateway
	limiter   domain.RateLimiter
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewPaymentService creates a PaymentService with all required dependencies.
func NewPaymentService(
	links domain.PaymentLinkStore,
	txs domain.TransactionStore,
	wallet domain.WalletStore,
	resolver *fees.Resolver,
	rates *RateService,
	stripeClient StripeGateway,
	crossmintClient CrossmintGateway,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		links:     links,
		txs:       txs,
		wallet:    wallet,
		resolver:  resolver,
		rates:     rates,
		stripe:    stripeClient,
		crossmint: crossmintClient,
		limiter:   limiter,
		bus:       bus,
		audit:     audit,
		logger:    logger.With(slog.String("component", "payment_service")),
	}
}

// CreateLink persists a new payment link for a professional. The slug
// is generated here and is the only public handle for the link.
func (s *PaymentService) CreateLink(ctx context.Context, link domain.PaymentLink) (domain.PaymentLink, error) {
	if !link.Amount.IsPositive() {
		return domain.PaymentLink{}, fmt.Errorf("payment_service: link amount %s: %w", link.Amount, domain.ErrInvalidAmount)
	}
	if link.Title == "" {
		return domain.PaymentLink{}, fmt.Errorf("payment_service: link title is required: %w", domain.ErrInvalidAmount)
	}
	if link.FeeChannel == "" {
		link.FeeChannel = domain.ChannelPaymentIntent
	}
	if _, err := s.resolver.Resolve(ctx).RateFor(link.FeeChannel); err != nil {
		return domain.PaymentLink{}, fmt.Errorf("payment_service: fee channel %q: %w", link.FeeChannel, err)
	}

	now := time.Now().UTC()
	link.ID = uuid.NewString()
	link.Slug = newSlug()
	link.Amount = link.Amount.Round(2)
	link.Status = domain.PaymentLinkActive
	link.CreatedAt = now
	link.UpdatedAt = now

	if err := s.links.Create(ctx, link); err != nil {
		return domain.PaymentLink{}, fmt.Errorf("payment_service: create link: %w", err)
	}

	s.auditLog(ctx, "link.created", map[string]any{
		"link_id":    link.ID,
		"profile_id": link.ProfileID,
		"amount":     link.Amount.String(),
		"currency":   link.Currency,
	})
	s.logger.InfoContext(ctx, "payment link created",
		slog.String("link_id", link.ID),
		slog.String("slug", link.Slug),
	)
	return link, nil
}

// OpenLink resolves a payment link by slug for the payer view and
// computes the fee breakdown the payer will be charged.
func (s *PaymentService) OpenLink(ctx context.Context, slug string) (domain.PaymentLink, fees.Breakdown, error) {
	link, err := s.links.GetBySlug(ctx, slug)
	if err != nil {
		return domain.PaymentLink{}, fees.Breakdown{}, fmt.Errorf("payment_service: open link %q: %w", slug, err)
	}
	if !link.Open(time.Now().UTC()) {
		return domain.PaymentLink{}, fees.Breakdown{}, fmt.Errorf("payment_service: link %q is %s: %w", slug, link.Status, domain.ErrConflict)
	}

	pct, err := s.resolver.Resolve(ctx).RateFor(link.FeeChannel)
	if err != nil {
		return domain.PaymentLink{}, fees.Breakdown{}, fmt.Errorf("payment_service: rate for link %q: %w", slug, err)
	}
	breakdown, err := fees.CalculateMarketplaceFee(link.Amount, pct)
	if err != nil {
		return domain.PaymentLink{}, fees.Breakdown{}, fmt.Errorf("payment_service: breakdown for link %q: %w", slug, err)
	}
	return link, breakdown, nil
}

// ListLinks pages a professional's payment links.
func (s *PaymentService) ListLinks(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.PaymentLink, error) {
	links, err := s.links.ListByProfile(ctx, profileID, opts)
	if err != nil {
		return nil, fmt.Errorf("payment_service: list links for %q: %w", profileID, err)
	}
	return links, nil
}

// CreateIntent opens a Stripe PaymentIntent for a link. The payer is
// charged the link amount plus the payment_intent channel fee; Stripe
// charges in USD, so AED amounts convert through the rate cache first.
func (s *PaymentService) CreateIntent(ctx context.Context, slug string, payerID *string) (domain.Transaction, stripe.APIPaymentIntent, error) {
	tx, charge, err := s.prepareCharge(ctx, slug, payerID, domain.ChannelPaymentIntent, domain.ProcessorStripe)
	if err != nil {
		return domain.Transaction{}, stripe.APIPaymentIntent{}, err
	}

	intent, err := s.stripe.CreatePaymentIntent(ctx, charge.amount, charge.currency, "txn_"+tx.ID, map[string]string{
		"transaction_id": tx.ID,
		"link_id":        *tx.LinkID,
	})
	if err != nil {
		return domain.Transaction{}, stripe.APIPaymentIntent{}, fmt.Errorf("payment_service: create payment intent: %w", err)
	}

	tx.ProcessorRef = intent.ID
	if err := s.txs.Create(ctx, tx); err != nil {
		return domain.Transaction{}, stripe.APIPaymentIntent{}, fmt.Errorf("payment_service: persist transaction: %w", err)
	}

	s.auditLog(ctx, "payment.intent_created", map[string]any{
		"transaction_id": tx.ID,
		"intent_id":      intent.ID,
		"gross":          tx.GrossAmount.String(),
		"currency":       tx.Currency,
	})
	return tx, intent, nil
}

// CreateCheckoutSession opens a hosted Stripe Checkout for a link at
// the checkout channel rate.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, slug string, payerID *string, successURL, cancelURL string) (domain.Transaction, stripe.APICheckoutSession, error) {
	tx, charge, err := s.prepareCharge(ctx, slug, payerID, domain.ChannelCheckout, domain.ProcessorStripe)
	if err != nil {
		return domain.Transaction{}, stripe.APICheckoutSession{}, err
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, charge.amount, charge.currency, charge.title, successURL, cancelURL, "txn_"+tx.ID, map[string]string{
		"transaction_id": tx.ID,
		"link_id":        *tx.LinkID,
	})
	if err != nil {
		return domain.Transaction{}, stripe.APICheckoutSession{}, fmt.Errorf("payment_service: create checkout session: %w", err)
	}

	tx.ProcessorRef = session.ID
	if err := s.txs.Create(ctx, tx); err != nil {
		return domain.Transaction{}, stripe.APICheckoutSession{}, fmt.Errorf("payment_service: persist transaction: %w", err)
	}

	s.auditLog(ctx, "payment.checkout_created", map[string]any{
		"transaction_id": tx.ID,
		"session_id":     session.ID,
		"gross":          tx.GrossAmount.String(),
	})
	return tx, session, nil
}

// CreateCrossmintOrder opens a Crossmint crypto order for a link at
// the crossmint channel rate. Crossmint settles in USDC, so the charge
// converts to USD terms.
func (s *PaymentService) CreateCrossmintOrder(ctx context.Context, slug string, payerID *string, receiptEmail string) (domain.Transaction, crossmint.APIOrder, error) {
	tx, charge, err := s.prepareCharge(ctx, slug, payerID, domain.ChannelCrossmint, domain.ProcessorCrossmint)
	if err != nil {
		return domain.Transaction{}, crossmint.APIOrder{}, err
	}

	order, err := s.crossmint.CreateOrder(ctx, charge.amount, charge.currency, charge.title, receiptEmail)
	if err != nil {
		return domain.Transaction{}, crossmint.APIOrder{}, fmt.Errorf("payment_service: create crossmint order: %w", err)
	}

	tx.ProcessorRef = order.OrderID
	if err := s.txs.Create(ctx, tx); err != nil {
		return domain.Transaction{}, crossmint.APIOrder{}, fmt.Errorf("payment_service: persist transaction: %w", err)
	}

	s.auditLog(ctx, "payment.crossmint_created", map[string]any{
		"transaction_id": tx.ID,
		"order_id":       order.OrderID,
		"gross":          tx.GrossAmount.String(),
	})
	return tx, order, nil
}

// chargeSpec is the processor-facing side of a prepared transaction:
// the amount and currency actually sent upstream, after conversion.
type chargeSpec struct {
	amount   decimal.Decimal
	currency string
	title    string
}

// prepareCharge validates the link, snapshots the channel rate, splits
// the fee, converts the charge into processor currency, and assembles
// the pending transaction. The transaction is not persisted yet; the
// caller attaches the processor reference first.
func (s *PaymentService) prepareCharge(ctx context.Context, slug string, payerID *string, channel domain.FeeChannel, processor domain.PaymentProcessor) (domain.Transaction, chargeSpec, error) {
	key := "payments:" + slug
	if payerID != nil {
		key = "payments:" + *payerID
	}
	allowed, err := s.limiter.Allow(ctx, key, 10, time.Minute)
	if err == nil && !allowed {
		return domain.Transaction{}, chargeSpec{}, fmt.Errorf("payment_service: charge attempts: %w", domain.ErrRateLimited)
	}

	link, err := s.links.GetBySlug(ctx, slug)
	if err != nil {
		return domain.Transaction{}, chargeSpec{}, fmt.Errorf("payment_service: link %q: %w", slug, err)
	}
	if !link.Open(time.Now().UTC()) {
		return domain.Transaction{}, chargeSpec{}, fmt.Errorf("payment_service: link %q is %s: %w", slug, link.Status, domain.ErrConflict)
	}

	pct, err := s.resolver.Resolve(ctx).RateFor(channel)
	if err != nil {
		return domain.Transaction{}, chargeSpec{}, fmt.Errorf("payment_service: rate for channel %q: %w", channel, err)
	}
	breakdown, err := fees.CalculateMarketplaceFee(link.Amount, pct)
	if err != nil {
		return domain.Transaction{}, chargeSpec{}, fmt.Errorf("payment_service: fee split: %w", err)
	}

	// Processors charge in USD. The transaction row stays in the
	// link's currency; only the upstream charge converts.
	chargeAmount, chargeCurrency := breakdown.TotalAmount, link.Currency
	if link.Currency != "USD" {
		converted, convErr := s.rates.Convert(ctx, breakdown.TotalAmount, link.Currency, "USD")
		if convErr != nil {
			return domain.Transaction{}, chargeSpec{}, fmt.Errorf("payment_service: convert charge: %w", convErr)
		}
		chargeAmount, chargeCurrency = converted, "USD"
	}

	now := time.Now().UTC()
	linkID := link.ID
	tx := domain.Transaction{
		ID:          uuid.NewString(),
		LinkID:      &linkID,
		PayerID:     payerID,
		ProfileID:   link.ProfileID,
		Processor:   processor,
		Currency:    link.Currency,
		GrossAmount: breakdown.TotalAmount,
		FeeAmount:   breakdown.FeeAmount,
		NetAmount:   breakdown.OriginalAmount,
		FeePercent:  pct,
		Status:      domain.TransactionPending,
		Metadata:    map[string]string{"fee_channel": string(channel)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return tx, chargeSpec{amount: chargeAmount, currency: chargeCurrency, title: link.Title}, nil
}

// GetTransaction retrieves a single transaction by its ID.
func (s *PaymentService) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.txs.GetByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("payment_service: get transaction %q: %w", id, err)
	}
	return tx, nil
}

// ListTransactions pages a professional's transactions.
func (s *PaymentService) ListTransactions(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	txs, err := s.txs.ListByProfile(ctx, profileID, opts)
	if err != nil {
		return nil, fmt.Errorf("payment_service: list transactions for %q: %w", profileID, err)
	}
	return txs, nil
}

// UpdateTransaction applies a constrained status move and merges
// metadata. Amounts are immutable; only legal lifecycle transitions
// are accepted.
func (s *PaymentService) UpdateTransaction(ctx context.Context, id string, status domain.TransactionStatus, metadata map[string]string) (domain.Transaction, error) {
	tx, err := s.txs.GetByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("payment_service: get transaction %q: %w", id, err)
	}

	if status != "" && status != tx.Status {
		if !tx.Status.CanTransition(status) {
			return domain.Transaction{}, fmt.Errorf("payment_service: transaction %q cannot move %s -> %s: %w", id, tx.Status, status, domain.ErrConflict)
		}
		if status == domain.TransactionSucceeded {
			// Success always routes through settle so the ledger credit happens.
			if err := s.settleTransaction(ctx, tx); err != nil {
				return domain.Transaction{}, err
			}
		} else if err := s.txs.UpdateStatus(ctx, id, status, ""); err != nil {
			return domain.Transaction{}, fmt.Errorf("payment_service: update status: %w", err)
		}
		tx.Status = status
	}

	if len(metadata) > 0 {
		if tx.Metadata == nil {
			tx.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			tx.Metadata[k] = v
		}
		if err := s.txs.SetMetadata(ctx, id, tx.Metadata); err != nil {
			return domain.Transaction{}, fmt.Errorf("payment_service: set metadata: %w", err)
		}
	}
	return tx, nil
}

// ManualComplete marks a pending transaction as paid by offline
// settlement (bank wire, cash). Admin-gated at the handler.
func (s *PaymentService) ManualComplete(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.txs.GetByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("payment_service: get transaction %q: %w", id, err)
	}
	if tx.Status.Terminal() {
		return domain.Transaction{}, fmt.Errorf("payment_service: transaction %q already %s: %w", id, tx.Status, domain.ErrConflict)
	}
	tx.Processor = domain.ProcessorManual
	if err := s.settleTransaction(ctx, tx); err != nil {
		return domain.Transaction{}, err
	}
	tx.Status = domain.TransactionSucceeded
	s.auditLog(ctx, "payment.manual_complete", map[string]any{"transaction_id": id})
	return tx, nil
}

// CompleteByProcessorRef settles the transaction a webhook confirmed.
// Replayed confirmations are acknowledged without double-crediting.
func (s *PaymentService) CompleteByProcessorRef(ctx context.Context, processor domain.PaymentProcessor, ref string) error {
	tx, err := s.txs.GetByProcessorRef(ctx, processor, ref)
	if err != nil {
		return fmt.Errorf("payment_service: transaction for %s ref %q: %w", processor, ref, err)
	}
	if tx.Status == domain.TransactionSucceeded {
		return nil
	}
	if tx.Status.Terminal() {
		return fmt.Errorf("payment_service: transaction %q already %s: %w", tx.ID, tx.Status, domain.ErrConflict)
	}
	return s.settleTransaction(ctx, tx)
}

// FailByProcessorRef records an upstream payment failure.
func (s *PaymentService) FailByProcessorRef(ctx context.Context, processor domain.PaymentProcessor, ref, reason string) error {
	tx, err := s.txs.GetByProcessorRef(ctx, processor, ref)
	if err != nil {
		return fmt.Errorf("payment_service: transaction for %s ref %q: %w", processor, ref, err)
	}
	if tx.Status.Terminal() {
		return nil
	}
	if err := s.txs.UpdateStatus(ctx, tx.ID, domain.TransactionFailed, reason); err != nil {
		return fmt.Errorf("payment_service: mark failed: %w", err)
	}

	s.auditLog(ctx, "payment.failed", map[string]any{
		"transaction_id": tx.ID,
		"processor":      string(processor),
		"reason":         reason,
	})
	s.publish(ctx, domain.Event{
		ID:        uuid.NewString(),
		Type:      domain.EventPaymentFailed,
		EntityID:  tx.ID,
		ProfileID: tx.ProfileID,
		Severity:  domain.SeverityWarning,
		Detail:    map[string]string{"reason": reason, "processor": string(processor)},
		CreatedAt: time.Now().UTC(),
	})
	s.logger.WarnContext(ctx, "payment failed",
		slog.String("transaction_id", tx.ID),
		slog.String("reason", reason),
	)
	return nil
}

// RefundByProcessorRef walks a succeeded transaction to refunded and
// claws the net credit back out of the ledger.
func (s *PaymentService) RefundByProcessorRef(ctx context.Context, processor domain.PaymentProcessor, ref string) error {
	tx, err := s.txs.GetByProcessorRef(ctx, processor, ref)
	if err != nil {
		return fmt.Errorf("payment_service: transaction for %s ref %q: %w", processor, ref, err)
	}
	if tx.Status == domain.TransactionRefunded {
		return nil
	}
	if !tx.Status.CanTransition(domain.TransactionRefunded) {
		return fmt.Errorf("payment_service: transaction %q cannot refund from %s: %w", tx.ID, tx.Status, domain.ErrConflict)
	}
	if err := s.txs.UpdateStatus(ctx, tx.ID, domain.TransactionRefunded, ""); err != nil {
		return fmt.Errorf("payment_service: mark refunded: %w", err)
	}

	debit := domain.WalletTransaction{
		ID:        uuid.NewString(),
		ProfileID: tx.ProfileID,
		Type:      domain.WalletDebit,
		Amount:    tx.NetAmount,
		Currency:  tx.Currency,
		Reference: "transaction:" + tx.ID,
		Note:      "refund clawback",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.wallet.Insert(ctx, debit); err != nil {
		s.logger.ErrorContext(ctx, "refund clawback failed, ledger out of balance",
			slog.String("transaction_id", tx.ID),
			slog.String("error", err.Error()),
		)
	}
	s.auditLog(ctx, "payment.refunded", map[string]any{"transaction_id": tx.ID, "net": tx.NetAmount.String()})
	return nil
}

// settleTransaction is the single success path: status, ledger credit,
// link closure, event. Every succeeded transaction goes through here
// exactly once.
func (s *PaymentService) settleTransaction(ctx context.Context, tx domain.Transaction) error {
	if err := s.txs.UpdateStatus(ctx, tx.ID, domain.TransactionSucceeded, ""); err != nil {
		return fmt.Errorf("payment_service: mark succeeded: %w", err)
	}

	now := time.Now().UTC()
	credit := domain.WalletTransaction{
		ID:        uuid.NewString(),
		ProfileID: tx.ProfileID,
		Type:      domain.WalletCredit,
		Amount:    tx.NetAmount,
		Currency:  tx.Currency,
		Reference: "transaction:" + tx.ID,
		Note:      "payment received",
		CreatedAt: now,
	}
	if err := s.wallet.Insert(ctx, credit); err != nil {
		// The capture happened upstream. Keep the transaction
		// succeeded and flag the missing credit loudly.
		s.logger.ErrorContext(ctx, "ledger credit failed after capture",
			slog.String("transaction_id", tx.ID),
			slog.String("error", err.Error()),
		)
		s.auditLog(ctx, "payment.credit_failed", map[string]any{"transaction_id": tx.ID})
	}

	if tx.LinkID != nil {
		if err := s.links.UpdateStatus(ctx, *tx.LinkID, domain.PaymentLinkPaid); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "link close failed",
				slog.String("link_id", *tx.LinkID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.auditLog(ctx, "payment.succeeded", map[string]any{
		"transaction_id": tx.ID,
		"processor":      string(tx.Processor),
		"gross":          tx.GrossAmount.String(),
		"fee":            tx.FeeAmount.String(),
		"net":            tx.NetAmount.String(),
	})
	s.publish(ctx, domain.Event{
		ID:        uuid.NewString(),
		Type:      domain.EventPaymentSucceeded,
		EntityID:  tx.ID,
		ProfileID: tx.ProfileID,
		Severity:  domain.SeverityInfo,
		Detail: map[string]string{
			"gross":    tx.GrossAmount.String(),
			"net":      tx.NetAmount.String(),
			"currency": tx.Currency,
		},
		CreatedAt: now,
	})
	s.logger.InfoContext(ctx, "payment succeeded",
		slog.String("transaction_id", tx.ID),
		slog.String("processor", string(tx.Processor)),
		slog.String("gross", tx.GrossAmount.String()),
	)
	return nil
}

// ExpireDueLinks closes links whose expiry passed. Called by the
// sweeper loop.
func (s *PaymentService) ExpireDueLinks(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.links.ExpireDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("payment_service: expire links: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "payment links expired", slog.Int64("count", n))
	}
	return n, nil
}

func (s *PaymentService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", slog.String("error", err.Error()))
	}
}

func (s *PaymentService) publish(ctx context.Context, ev domain.Event) {
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
	if err := s.bus.StreamAppend(ctx, "stream:payments", payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
	}
}

// newSlug returns a short URL-safe share token for a payment link.
func newSlug() string {
	var b [10]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uuid.NewString()[:16]
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:])
}
