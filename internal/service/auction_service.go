package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/fees"
	"github.com/decodebeauty/decode-server/internal/payout"
)

// auctionStream is the durable stream auction lifecycle events land on.
const auctionStream = "stream:auctions"

// recentBidsKept is how many bids the per-auction cache retains.
const recentBidsKept = 50

// TokenIssuer creates upload credentials for video-gated settlements.
// Implemented by VideoService.
type TokenIssuer interface {
	IssueToken(ctx context.Context, auctionID string) (domain.VideoToken, error)
}

// AuctionService owns the auction lifecycle: creation with a frozen
// fee rate, concurrent-safe bidding, and settlement into a profit
// split, ledger credit, and (when required) a video token.
type AuctionService struct {
	auctions domain.AuctionStore
	bids     domain.BidStore
	videos   domain.VideoTokenStore
	wallet   domain.WalletStore
	cache    domain.AuctionCache
	recent   domain.BidCache
	locks    domain.LockManager
	limiter  domain.RateLimiter
	resolver *fees.Resolver
	tokens   TokenIssuer
	bus      domain.SignalBus
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewAuctionService creates an AuctionService with all required dependencies.
func NewAuctionService(
	auctions domain.AuctionStore,
	bids domain.BidStore,
	videos domain.VideoTokenStore,
	wallet domain.WalletStore,
	cache domain.AuctionCache,
	recent domain.BidCache,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	resolver *fees.Resolver,
	tokens TokenIssuer,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		auctions: auctions,
		bids:     bids,
		videos:   videos,
		wallet:   wallet,
		cache:    cache,
		recent:   recent,
		locks:    locks,
		limiter:  limiter,
		resolver: resolver,
		tokens:   tokens,
		bus:      bus,
		audit:    audit,
		logger:   logger.With(slog.String("component", "auction_service")),
	}
}

// CreateAuction opens a new auction. The auction channel rate is
// snapshotted here so a later policy change cannot move a running
// auction's split.
func (s *AuctionService) CreateAuction(ctx context.Context, a domain.Auction) (domain.Auction, error) {
	if a.StartPrice.IsNegative() {
		return domain.Auction{}, fmt.Errorf("auction_service: start price %s: %w", a.StartPrice, domain.ErrInvalidAmount)
	}
	if !a.MinIncrement.IsPositive() {
		return domain.Auction{}, fmt.Errorf("auction_service: min increment %s: %w", a.MinIncrement, domain.ErrInvalidAmount)
	}
	now := time.Now().UTC()
	if !a.EndsAt.After(now) {
		return domain.Auction{}, fmt.Errorf("auction_service: ends_at %s is in the past: %w", a.EndsAt, domain.ErrConflict)
	}

	pct, err := s.resolver.Resolve(ctx).RateFor(domain.ChannelAuction)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: auction rate: %w", err)
	}

	a.ID = uuid.NewString()
	a.StartPrice = a.StartPrice.Round(2)
	a.CurrentPrice = a.StartPrice
	a.MinIncrement = a.MinIncrement.Round(2)
	a.FeePercent = pct
	a.Status = domain.AuctionOpen
	a.WinnerID = nil
	a.BidCount = 0
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := s.auctions.Create(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: create auction: %w", err)
	}
	if err := s.cache.Set(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "auction cache set failed", slog.String("error", err.Error()))
	}

	s.auditLog(ctx, "auction.created", map[string]any{
		"auction_id":  a.ID,
		"profile_id":  a.ProfileID,
		"start_price": a.StartPrice.String(),
		"fee_percent": a.FeePercent.String(),
		"ends_at":     a.EndsAt.Format(time.RFC3339),
	})
	s.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", a.ID),
		slog.String("start_price", a.StartPrice.String()),
	)
	return a, nil
}

// GetAuction resolves an auction, cache first. The public read path
// goes through here; a miss repopulates the cache.
func (s *AuctionService) GetAuction(ctx context.Context, id string) (domain.Auction, error) {
	if a, err := s.cache.Get(ctx, id); err == nil {
		return a, nil
	}
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: get auction %q: %w", id, err)
	}
	if err := s.cache.Set(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "auction cache set failed", slog.String("error", err.Error()))
	}
	return a, nil
}

// ListOpen pages currently open auctions.
func (s *AuctionService) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	auctions, err := s.auctions.ListOpen(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list open: %w", err)
	}
	return auctions, nil
}

// ListByProfile pages a professional's auctions.
func (s *AuctionService) ListByProfile(ctx context.Context, profileID string, opts domain.ListOpts) ([]domain.Auction, error) {
	auctions, err := s.auctions.ListByProfile(ctx, profileID, opts)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list for %q: %w", profileID, err)
	}
	return auctions, nil
}

// PlaceBid records a bid on an open auction. The price advance is
// enforced twice: here against the loaded row, and again inside the
// guarded store update, so two racing bidders cannot both win the same
// increment.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (domain.Bid, error) {
	allowed, err := s.limiter.Allow(ctx, "bids:"+bidderID, 10, time.Second)
	if err == nil && !allowed {
		return domain.Bid{}, fmt.Errorf("auction_service: bid attempts: %w", domain.ErrRateLimited)
	}

	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("auction_service: auction %q: %w", auctionID, err)
	}
	now := time.Now().UTC()
	if a.Status != domain.AuctionOpen || !now.Before(a.EndsAt) {
		return domain.Bid{}, fmt.Errorf("auction_service: auction %q: %w", auctionID, domain.ErrAuctionClosed)
	}
	if bidderID == a.ProfileID {
		return domain.Bid{}, fmt.Errorf("auction_service: owner cannot bid on own auction: %w", domain.ErrInvalidBid)
	}

	amount = amount.Round(2)
	minimum := a.CurrentPrice.Add(a.MinIncrement)
	if a.BidCount == 0 {
		minimum = a.StartPrice.Add(a.MinIncrement)
	}
	if amount.LessThan(minimum) {
		return domain.Bid{}, fmt.Errorf("auction_service: bid %s below minimum %s: %w", amount, minimum, domain.ErrBidTooLow)
	}

	if err := s.auctions.RecordBid(ctx, auctionID, amount, bidderID); err != nil {
		return domain.Bid{}, fmt.Errorf("auction_service: record bid: %w", err)
	}

	bid := domain.Bid{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		PlacedAt:  now,
	}
	if err := s.bids.Insert(ctx, bid); err != nil {
		// The price already advanced; the history row is best effort.
		s.logger.ErrorContext(ctx, "bid history insert failed",
			slog.String("auction_id", auctionID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.cache.Invalidate(ctx, auctionID); err != nil {
		s.logger.WarnContext(ctx, "auction cache invalidate failed", slog.String("error", err.Error()))
	}
	if err := s.recent.Push(ctx, bid, recentBidsKept); err != nil {
		s.logger.WarnContext(ctx, "bid cache push failed", slog.String("error", err.Error()))
	}

	s.publish(ctx, domain.Event{
		ID:        uuid.NewString(),
		Type:      domain.EventBidPlaced,
		EntityID:  auctionID,
		ProfileID: a.ProfileID,
		Severity:  domain.SeverityInfo,
		Detail: map[string]string{
			"bid_id":    bid.ID,
			"bidder_id": bidderID,
			"amount":    amount.String(),
			"bid_count": strconv.Itoa(a.BidCount + 1),
		},
		CreatedAt: now,
	})
	s.auditLog(ctx, "auction.bid_placed", map[string]any{
		"auction_id": auctionID,
		"bid_id":     bid.ID,
		"amount":     amount.String(),
	})
	s.logger.InfoContext(ctx, "bid placed",
		slog.String("auction_id", auctionID),
		slog.String("amount", amount.String()),
	)
	return bid, nil
}

// ListBids returns an auction's bid history, highest first. The first
// page is served from the capped Redis list when it has entries.
func (s *AuctionService) ListBids(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	if opts.Offset == 0 && opts.Limit > 0 && opts.Limit <= recentBidsKept {
		if cached, err := s.recent.Recent(ctx, auctionID, opts.Limit); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}
	bids, err := s.bids.ListByAuction(ctx, auctionID, opts)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list bids for %q: %w", auctionID, err)
	}
	return bids, nil
}

// Settle closes an ended auction and fixes its accounting: profit
// split at the frozen rate, settlement row, ledger credit, and a video
// token when the auction is video-gated. Settling an already settled
// auction returns the stored settlement unchanged.
func (s *AuctionService) Settle(ctx context.Context, auctionID string) (domain.Settlement, error) {
	unlock, err := s.locks.Acquire(ctx, "settle:"+auctionID, 30*time.Second)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("auction_service: settle lock %q: %w", auctionID, err)
	}
	defer unlock()

	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("auction_service: auction %q: %w", auctionID, err)
	}
	if a.Status == domain.AuctionSettled {
		settlement, getErr := s.auctions.GetSettlement(ctx, auctionID)
		if getErr != nil {
			return domain.Settlement{}, fmt.Errorf("auction_service: stored settlement %q: %w", auctionID, getErr)
		}
		return settlement, nil
	}
	if a.Status == domain.AuctionCancelled {
		return domain.Settlement{}, fmt.Errorf("auction_service: auction %q cancelled: %w", auctionID, domain.ErrConflict)
	}

	now := time.Now().UTC()
	if a.Status == domain.AuctionOpen && now.Before(a.EndsAt) {
		return domain.Settlement{}, fmt.Errorf("auction_service: auction %q still running: %w", auctionID, domain.ErrConflict)
	}

	top, err := s.bids.Top(ctx, auctionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No bids: nothing to settle, the auction just closes.
			if updErr := s.auctions.UpdateStatus(ctx, auctionID, domain.AuctionClosed); updErr != nil {
				return domain.Settlement{}, fmt.Errorf("auction_service: close unbid auction: %w", updErr)
			}
			s.invalidate(ctx, auctionID)
			s.auditLog(ctx, "auction.closed_unbid", map[string]any{"auction_id": auctionID})
			return domain.Settlement{}, fmt.Errorf("auction_service: auction %q has no bids: %w", auctionID, domain.ErrConflict)
		}
		return domain.Settlement{}, fmt.Errorf("auction_service: top bid %q: %w", auctionID, err)
	}

	split, err := fees.CalculateAuctionPayout(top.Amount, a.StartPrice, a.FeePercent)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("auction_service: payout split %q: %w", auctionID, err)
	}

	settlement := domain.Settlement{
		AuctionID:      auctionID,
		WinningBid:     split.WinningBid,
		StartPrice:     split.StartPrice,
		Profit:         split.Profit,
		PlatformFee:    split.PlatformFee,
		ModelNetAmount: split.ModelNetAmount,
		SettledAt:      now,
	}
	if err := s.auctions.SaveSettlement(ctx, settlement); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			stored, getErr := s.auctions.GetSettlement(ctx, auctionID)
			if getErr == nil {
				return stored, nil
			}
		}
		return domain.Settlement{}, fmt.Errorf("auction_service: save settlement %q: %w", auctionID, err)
	}

	winner := top.BidderID
	a.Status = domain.AuctionSettled
	a.WinnerID = &winner
	a.CurrentPrice = top.Amount
	a.UpdatedAt = now
	if err := s.auctions.Update(ctx, a); err != nil {
		return domain.Settlement{}, fmt.Errorf("auction_service: mark settled %q: %w", auctionID, err)
	}
	s.invalidate(ctx, auctionID)

	credit := domain.WalletTransaction{
		ID:        uuid.NewString(),
		ProfileID: a.ProfileID,
		Type:      domain.WalletCredit,
		Amount:    settlement.ModelNetAmount,
		Currency:  a.Currency,
		Reference: "auction:" + auctionID,
		Note:      "auction settlement",
		CreatedAt: now,
	}
	if err := s.wallet.Insert(ctx, credit); err != nil {
		s.logger.ErrorContext(ctx, "settlement credit failed, ledger out of balance",
			slog.String("auction_id", auctionID),
			slog.String("error", err.Error()),
		)
		s.auditLog(ctx, "auction.credit_failed", map[string]any{"auction_id": auctionID})
	}

	if a.RequiresVideo && s.tokens != nil {
		if _, tokErr := s.tokens.IssueToken(ctx, auctionID); tokErr != nil {
			s.logger.ErrorContext(ctx, "video token issue failed, payout will classify expired",
				slog.String("auction_id", auctionID),
				slog.String("error", tokErr.Error()),
			)
		}
	}

	s.auditLog(ctx, "auction.settled", map[string]any{
		"auction_id":   auctionID,
		"winner_id":    winner,
		"winning_bid":  settlement.WinningBid.String(),
		"profit":       settlement.Profit.String(),
		"platform_fee": settlement.PlatformFee.String(),
		"model_net":    settlement.ModelNetAmount.String(),
	})
	s.publish(ctx, domain.Event{
		ID:        uuid.NewString(),
		Type:      domain.EventAuctionSettled,
		EntityID:  auctionID,
		ProfileID: a.ProfileID,
		Severity:  domain.SeverityInfo,
		Detail: map[string]string{
			"winner_id":   winner,
			"winning_bid": settlement.WinningBid.String(),
			"model_net":   settlement.ModelNetAmount.String(),
		},
		CreatedAt: now,
	})
	s.logger.InfoContext(ctx, "auction settled",
		slog.String("auction_id", auctionID),
		slog.String("winning_bid", settlement.WinningBid.String()),
		slog.String("model_net", settlement.ModelNetAmount.String()),
	)
	return settlement, nil
}

// SettleDue closes and settles every auction whose end time passed.
// The auto settler loop calls this each tick; a single failing auction
// does not stop the rest.
func (s *AuctionService) SettleDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.auctions.ListEndedBefore(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("auction_service: list ended: %w", err)
	}
	settled := 0
	for _, a := range due {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Settle(ctx, a.ID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			s.logger.ErrorContext(ctx, "auto settle failed",
				slog.String("auction_id", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		settled++
	}
	return settled, nil
}

// PayoutEligibility classifies an auction's video workflow into the
// unlock state a payout request would see right now.
func (s *AuctionService) PayoutEligibility(ctx context.Context, auctionID string) (domain.UnlockState, error) {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return "", fmt.Errorf("auction_service: auction %q: %w", auctionID, err)
	}
	var tok *domain.VideoToken
	if t, err := s.videos.GetByAuction(ctx, auctionID); err == nil {
		tok = &t
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("auction_service: video token for %q: %w", auctionID, err)
	}
	return payout.Classify(payout.InputFor(a, tok, time.Now().UTC())), nil
}

func (s *AuctionService) invalidate(ctx context.Context, auctionID string) {
	if err := s.cache.Invalidate(ctx, auctionID); err != nil {
		s.logger.WarnContext(ctx, "auction cache invalidate failed", slog.String("error", err.Error()))
	}
}

func (s *AuctionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", slog.String("error", err.Error()))
	}
}

func (s *AuctionService) publish(ctx context.Context, ev domain.Event) {
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
	if err := s.bus.StreamAppend(ctx, auctionStream, payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
	}
}
