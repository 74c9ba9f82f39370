package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// Convert moves an amount between two currencies using an explicit,
// versioned exchange rate. The rate's Price is quote units per one
// base unit, so converting base->quote multiplies and quote->base
// divides. Each direction rounds half away from zero to 2 decimal
// places in a single step; conversion rounding never compounds with
// fee rounding because callers convert either before or after the fee
// split, not through chained unrounded intermediates.
func Convert(amount decimal.Decimal, from, to string, rate domain.ExchangeRate) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("fees: convert amount %s is negative: %w", amount, domain.ErrInvalidAmount)
	}
	if from == to {
		return round2(amount), nil
	}
	if !rate.Covers(from, to) {
		return decimal.Decimal{}, fmt.Errorf("fees: rate %s/%s cannot convert %s->%s: %w",
			rate.Base, rate.Quote, from, to, domain.ErrRateMismatch)
	}
	if !rate.Price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("fees: rate %s/%s has non-positive price %s: %w",
			rate.Base, rate.Quote, rate.Price, domain.ErrRateMismatch)
	}

	if from == rate.Base {
		return amount.Mul(rate.Price).Round(minorExp), nil
	}
	return amount.DivRound(rate.Price, minorExp), nil
}
