package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/server/middleware"
	"github.com/decodebeauty/decode-server/internal/service"
)

// AuctionHandler serves auction and bidding endpoints.
type AuctionHandler struct {
	auctions *service.AuctionService
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(auctions *service.AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{auctions: auctions, logger: logger}
}

type createAuctionRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	StartPrice    string `json:"start_price"`
	MinIncrement  string `json:"min_increment"`
	Currency      string `json:"currency"`
	RequiresVideo bool   `json:"requires_video"`
	EndsAt        string `json:"ends_at"`
}

type auctionResponse struct {
	ID            string    `json:"id"`
	ProfileID     string    `json:"profile_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	StartPrice    string    `json:"start_price"`
	CurrentPrice  string    `json:"current_price"`
	MinIncrement  string    `json:"min_increment"`
	Currency      string    `json:"currency"`
	FeePercent    string    `json:"fee_percentage"`
	RequiresVideo bool      `json:"requires_video"`
	Status        string    `json:"status"`
	WinnerID      *string   `json:"winner_id,omitempty"`
	BidCount      int       `json:"bid_count"`
	EndsAt        time.Time `json:"ends_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAuctionResponse(a domain.Auction) auctionResponse {
	return auctionResponse{
		ID:            a.ID,
		ProfileID:     a.ProfileID,
		Title:         a.Title,
		Description:   a.Description,
		StartPrice:    a.StartPrice.String(),
		CurrentPrice:  a.CurrentPrice.String(),
		MinIncrement:  a.MinIncrement.String(),
		Currency:      a.Currency,
		FeePercent:    a.FeePercent.String(),
		RequiresVideo: a.RequiresVideo,
		Status:        string(a.Status),
		WinnerID:      a.WinnerID,
		BidCount:      a.BidCount,
		EndsAt:        a.EndsAt,
		CreatedAt:     a.CreatedAt,
	}
}

type bidResponse struct {
	ID       string    `json:"id"`
	BidderID string    `json:"bidder_id"`
	Amount   string    `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

// CreateAuction opens an auction for the authenticated professional.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createAuctionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	startPrice, err := decimal.NewFromString(req.StartPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_price")
		return
	}
	minIncrement, err := decimal.NewFromString(req.MinIncrement)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_increment")
		return
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ends_at")
		return
	}
	if req.Currency == "" {
		req.Currency = "AED"
	}

	created, err := h.auctions.CreateAuction(r.Context(), domain.Auction{
		ProfileID:     profileID,
		Title:         req.Title,
		Description:   req.Description,
		StartPrice:    startPrice,
		MinIncrement:  minIncrement,
		Currency:      req.Currency,
		RequiresVideo: req.RequiresVideo,
		EndsAt:        endsAt,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create auction failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuctionResponse(created))
}

// GetAuction is the public auction view.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}
	a, err := h.auctions.GetAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

// ListAuctions pages open auctions.
// GET /api/auctions
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.auctions.ListOpen(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]auctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, toAuctionResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"auctions": out})
}

// PlaceBid records a bid by the authenticated user.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	var req struct {
		Amount string `json:"amount"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	bid, err := h.auctions.PlaceBid(r.Context(), id, bidderID, amount)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: bid rejected",
			slog.String("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bidResponse{
		ID:       bid.ID,
		BidderID: bid.BidderID,
		Amount:   bid.Amount.String(),
		PlacedAt: bid.PlacedAt,
	})
}

// ListBids is the public bid history, highest first.
// GET /api/auctions/{id}/bids
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}
	bids, err := h.auctions.ListBids(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, bidResponse{
			ID:       b.ID,
			BidderID: b.BidderID,
			Amount:   b.Amount.String(),
			PlacedAt: b.PlacedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": out})
}

// Settle closes and settles an ended auction. Only the owning
// professional or an admin may trigger it.
// POST /api/auctions/{id}/settle
func (h *AuctionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	a, err := h.auctions.GetAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if a.ProfileID != profileID && middleware.Role(r.Context()) != string(domain.RoleAdmin) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	settlement, err := h.auctions.Settle(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: settle failed",
			slog.String("auction_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auction_id":       settlement.AuctionID,
		"winning_bid":      settlement.WinningBid.String(),
		"start_price":      settlement.StartPrice.String(),
		"profit":           settlement.Profit.String(),
		"platform_fee":     settlement.PlatformFee.String(),
		"model_net_amount": settlement.ModelNetAmount.String(),
		"settled_at":       settlement.SettledAt.Format(time.RFC3339),
	})
}

// PayoutEligibility reports the unlock-gate classification for an
// auction's earnings.
// GET /api/auctions/{id}/payout-eligibility
func (h *AuctionHandler) PayoutEligibility(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}
	state, err := h.auctions.PayoutEligibility(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auction_id":   id,
		"unlock_state": string(state),
		"unlocked":     state.Unlocked(),
	})
}
