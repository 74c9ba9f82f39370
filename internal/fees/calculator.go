// Package fees implements the platform's money arithmetic: marketplace
// fee splits, auction profit splits, the per-channel fee schedule, and
// currency conversion. Everything here is pure computation over
// decimal values: no I/O, no clock reads, no randomness. All rounding
// is half-away-from-zero to 2 decimal places (currency minor units),
// applied exactly once per derived field.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
)

var (
	hundred  = decimal.NewFromInt(100)
	minorExp = int32(2)
)

// Breakdown is the result of a flat marketplace fee computation. The
// fee is added on top of the base amount: the payer is charged
// TotalAmount, the professional earns OriginalAmount.
type Breakdown struct {
	OriginalAmount decimal.Decimal `json:"original_amount"`
	FeePercent     decimal.Decimal `json:"fee_percentage"`
	FeeAmount      decimal.Decimal `json:"fee_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

// AuctionPayout is the result of a profit-based auction split.
// PlatformFee + ModelNetAmount always equals Profit exactly.
type AuctionPayout struct {
	WinningBid     decimal.Decimal `json:"winning_bid"`
	StartPrice     decimal.Decimal `json:"start_price"`
	FeePercent     decimal.Decimal `json:"fee_percentage"`
	Profit         decimal.Decimal `json:"profit"`
	PlatformFee    decimal.Decimal `json:"platform_fee"`
	ModelNetAmount decimal.Decimal `json:"model_net_amount"`
}

// round2 rounds half away from zero to currency minor units.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(minorExp)
}

// applyPercent computes round2(amount * pct / 100). The division by
// 100 is an exact exponent shift, so the single Round here is the only
// rounding step.
func applyPercent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Shift(-2).Round(minorExp)
}

func validatePercent(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("fees: percentage %s out of range [0,100]: %w", pct, domain.ErrInvalidPercentage)
	}
	return nil
}

// CalculateMarketplaceFee computes the flat fee split for a base
// service price. The percentage is always supplied by the caller,
// resolved from the fee schedule; there is no default rate.
func CalculateMarketplaceFee(originalAmount, feePercent decimal.Decimal) (Breakdown, error) {
	if originalAmount.IsNegative() {
		return Breakdown{}, fmt.Errorf("fees: amount %s is negative: %w", originalAmount, domain.ErrInvalidAmount)
	}
	if err := validatePercent(feePercent); err != nil {
		return Breakdown{}, err
	}

	feeAmount := applyPercent(originalAmount, feePercent)
	totalAmount := round2(originalAmount.Add(feeAmount))

	return Breakdown{
		OriginalAmount: originalAmount,
		FeePercent:     feePercent,
		FeeAmount:      feeAmount,
		TotalAmount:    totalAmount,
	}, nil
}

// CalculateAuctionPayout splits an auction's profit between the
// platform and the professional. Profit clamps to zero when the
// winning bid does not exceed the start price; the net is derived by
// subtraction from the already-rounded fee so the two parts always
// reassemble into the profit exactly.
func CalculateAuctionPayout(winningBid, startPrice, feePercent decimal.Decimal) (AuctionPayout, error) {
	if winningBid.IsNegative() {
		return AuctionPayout{}, fmt.Errorf("fees: winning bid %s is negative: %w", winningBid, domain.ErrInvalidBid)
	}
	if startPrice.IsNegative() {
		return AuctionPayout{}, fmt.Errorf("fees: start price %s is negative: %w", startPrice, domain.ErrInvalidBid)
	}
	if err := validatePercent(feePercent); err != nil {
		return AuctionPayout{}, err
	}

	profit := round2(winningBid.Sub(startPrice))
	if profit.IsNegative() {
		profit = decimal.Zero
	}
	platformFee := applyPercent(profit, feePercent)
	modelNet := round2(profit.Sub(platformFee))

	return AuctionPayout{
		WinningBid:     winningBid,
		StartPrice:     startPrice,
		FeePercent:     feePercent,
		Profit:         profit,
		PlatformFee:    platformFee,
		ModelNetAmount: modelNet,
	}, nil
}
