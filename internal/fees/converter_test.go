package fees

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
)

func pegRate() domain.ExchangeRate {
	return domain.ExchangeRate{
		Base:      "USD",
		Quote:     "AED",
		Price:     dec("3.6725"),
		Version:   1,
		FetchedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestConvertQuoteToBase(t *testing.T) {
	// 100 AED / 3.6725 = 27.2294... -> 27.23, one rounding step.
	got, err := Convert(dec("100.00"), "AED", "USD", pegRate())
	require.NoError(t, err)
	require.True(t, got.Equal(dec("27.23")), "got %s", got)
}

func TestConvertBaseToQuote(t *testing.T) {
	got, err := Convert(dec("27.23"), "USD", "AED", pegRate())
	require.NoError(t, err)
	require.True(t, got.Equal(dec("100.00")), "got %s", got)
}

func TestConvertSameCurrency(t *testing.T) {
	got, err := Convert(dec("42.50"), "AED", "AED", domain.ExchangeRate{})
	require.NoError(t, err)
	require.True(t, got.Equal(dec("42.50")))
}

func TestConvertZeroAmount(t *testing.T) {
	got, err := Convert(decimal.Zero, "AED", "USD", pegRate())
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestConvertErrors(t *testing.T) {
	_, err := Convert(dec("-1"), "AED", "USD", pegRate())
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = Convert(dec("10"), "EUR", "USD", pegRate())
	require.ErrorIs(t, err, domain.ErrRateMismatch)

	bad := pegRate()
	bad.Price = decimal.Zero
	_, err = Convert(dec("10"), "AED", "USD", bad)
	require.ErrorIs(t, err, domain.ErrRateMismatch)
}

// Conversion rounding is independent of fee rounding: converting a
// base price and then applying the fee must match the hand-computed
// values at each step, with no compounding drift.
func TestConvertThenFee(t *testing.T) {
	usd, err := Convert(dec("200.00"), "AED", "USD", pegRate())
	require.NoError(t, err)
	require.True(t, usd.Equal(dec("54.46")), "got %s", usd) // 200/3.6725 = 54.4588...

	b, err := CalculateMarketplaceFee(usd, dec("5"))
	require.NoError(t, err)
	require.True(t, b.FeeAmount.Equal(dec("2.72")), "got %s", b.FeeAmount) // 2.723 -> 2.72
	require.True(t, b.TotalAmount.Equal(dec("57.18")), "got %s", b.TotalAmount)
}
