package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// Statement is one page of a profile's ledger with the full derived
// balance. The balance sums every entry, not just the page.
type Statement struct {
	Entries  []domain.WalletTransaction
	Balance  decimal.Decimal
	Currency string
}

// WalletService reads the append-only earnings ledger. All writes
// happen inside the payment, auction, and payout flows; nothing edits
// an entry after the fact.
type WalletService struct {
	wallet domain.WalletStore
	logger *slog.Logger
}

// NewWalletService creates a WalletService.
func NewWalletService(wallet domain.WalletStore, logger *slog.Logger) *WalletService {
	return &WalletService{
		wallet: wallet,
		logger: logger.With(slog.String("component", "wallet_service")),
	}
}

// GetStatement pages a profile's ledger and derives the balance.
func (s *WalletService) GetStatement(ctx context.Context, profileID, currency string, opts domain.ListOpts) (Statement, error) {
	entries, err := s.wallet.ListByProfile(ctx, profileID, opts)
	if err != nil {
		return Statement{}, fmt.Errorf("wallet_service: list entries for %q: %w", profileID, err)
	}
	balance, err := s.wallet.Balance(ctx, profileID, currency)
	if err != nil {
		return Statement{}, fmt.Errorf("wallet_service: balance for %q: %w", profileID, err)
	}
	return Statement{Entries: entries, Balance: balance, Currency: currency}, nil
}

// Balance derives a profile's balance in one currency.
func (s *WalletService) Balance(ctx context.Context, profileID, currency string) (decimal.Decimal, error) {
	balance, err := s.wallet.Balance(ctx, profileID, currency)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("wallet_service: balance for %q: %w", profileID, err)
	}
	return balance, nil
}

// Adjust appends a manual correction entry. Admin-gated at the
// handler; the note is required so every adjustment is explained.
func (s *WalletService) Adjust(ctx context.Context, entry domain.WalletTransaction) error {
	if !entry.Amount.IsPositive() {
		return fmt.Errorf("wallet_service: adjustment amount %s: %w", entry.Amount, domain.ErrInvalidAmount)
	}
	if entry.Note == "" {
		return fmt.Errorf("wallet_service: adjustment needs a note: %w", domain.ErrInvalidAmount)
	}
	entry.ID = uuid.NewString()
	entry.Reference = "adjustment"
	entry.CreatedAt = time.Now().UTC()
	if err := s.wallet.Insert(ctx, entry); err != nil {
		return fmt.Errorf("wallet_service: insert adjustment: %w", err)
	}
	s.logger.InfoContext(ctx, "ledger adjusted",
		slog.String("profile_id", entry.ProfileID),
		slog.String("type", string(entry.Type)),
		slog.String("amount", entry.Amount.String()),
	)
	return nil
}
