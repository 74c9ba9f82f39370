package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateMarketplaceFee(t *testing.T) {
	cases := []struct {
		name    string
		amount  string
		pct     string
		fee     string
		total   string
	}{
		{"eleven percent on 200", "200.00", "11", "22.00", "222.00"},
		{"five percent", "100.00", "5", "5.00", "105.00"},
		{"nine percent", "150.00", "9", "13.50", "163.50"},
		{"zero percent", "80.00", "0", "0", "80.00"},
		{"hundred percent", "80.00", "100", "80.00", "160.00"},
		{"zero amount", "0", "11", "0", "0"},
		{"rounds half away from zero", "0.10", "5", "0.01", "0.11"},
		{"sub-cent fee rounds down", "0.01", "5", "0.00", "0.01"},
		{"fractional percent", "123.45", "9.5", "11.73", "135.18"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculateMarketplaceFee(dec(tc.amount), dec(tc.pct))
			require.NoError(t, err)
			require.True(t, got.FeeAmount.Equal(dec(tc.fee)), "fee: got %s want %s", got.FeeAmount, tc.fee)
			require.True(t, got.TotalAmount.Equal(dec(tc.total)), "total: got %s want %s", got.TotalAmount, tc.total)
			require.True(t, got.OriginalAmount.Equal(dec(tc.amount)))
		})
	}
}

func TestCalculateMarketplaceFeeErrors(t *testing.T) {
	_, err := CalculateMarketplaceFee(dec("-0.01"), dec("5"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = CalculateMarketplaceFee(dec("10"), dec("-1"))
	require.ErrorIs(t, err, domain.ErrInvalidPercentage)

	_, err = CalculateMarketplaceFee(dec("10"), dec("100.01"))
	require.ErrorIs(t, err, domain.ErrInvalidPercentage)
}

// Sweep a deterministic grid of minor-unit amounts and percentages and
// check the invariants: fee >= 0, total >= amount, and the split
// reassembles exactly after rounding.
func TestMarketplaceFeeInvariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		amount := decimal.New(int64(i*7919%1000000), -2) // 0.00 .. 9999.99
		pct := decimal.New(int64(i*37%10001), -2)        // 0.00 .. 100.00

		got, err := CalculateMarketplaceFee(amount, pct)
		require.NoError(t, err)
		require.False(t, got.FeeAmount.IsNegative(), "amount=%s pct=%s", amount, pct)
		require.True(t, got.TotalAmount.GreaterThanOrEqual(amount), "amount=%s pct=%s", amount, pct)
		require.True(t, got.TotalAmount.Equal(amount.Add(got.FeeAmount)),
			"amount=%s pct=%s fee=%s total=%s", amount, pct, got.FeeAmount, got.TotalAmount)
	}
}

func TestMarketplaceFeeIdempotent(t *testing.T) {
	a, err := CalculateMarketplaceFee(dec("199.99"), dec("11"))
	require.NoError(t, err)
	b, err := CalculateMarketplaceFee(dec("199.99"), dec("11"))
	require.NoError(t, err)
	require.Equal(t, a.FeeAmount.String(), b.FeeAmount.String())
	require.Equal(t, a.TotalAmount.String(), b.TotalAmount.String())
}

func TestCalculateAuctionPayout(t *testing.T) {
	cases := []struct {
		name   string
		bid    string
		start  string
		pct    string
		profit string
		fee    string
		net    string
	}{
		{"quarter split", "500.00", "200.00", "25", "300.00", "75.00", "225.00"},
		{"bid equals start", "200.00", "200.00", "25", "0", "0", "0"},
		{"bid below start clamps", "150.00", "200.00", "25", "0", "0", "0"},
		{"zero start", "120.00", "0", "25", "120.00", "30.00", "90.00"},
		{"odd cents", "100.01", "0", "33", "100.01", "33.00", "67.01"},
		{"rounding keeps split exact", "0.03", "0", "25", "0.03", "0.01", "0.02"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculateAuctionPayout(dec(tc.bid), dec(tc.start), dec(tc.pct))
			require.NoError(t, err)
			require.True(t, got.Profit.Equal(dec(tc.profit)), "profit: got %s want %s", got.Profit, tc.profit)
			require.True(t, got.PlatformFee.Equal(dec(tc.fee)), "fee: got %s want %s", got.PlatformFee, tc.fee)
			require.True(t, got.ModelNetAmount.Equal(dec(tc.net)), "net: got %s want %s", got.ModelNetAmount, tc.net)
		})
	}
}

func TestCalculateAuctionPayoutErrors(t *testing.T) {
	_, err := CalculateAuctionPayout(dec("-1"), dec("0"), dec("25"))
	require.ErrorIs(t, err, domain.ErrInvalidBid)

	_, err = CalculateAuctionPayout(dec("10"), dec("-5"), dec("25"))
	require.ErrorIs(t, err, domain.ErrInvalidBid)

	_, err = CalculateAuctionPayout(dec("10"), dec("5"), dec("101"))
	require.ErrorIs(t, err, domain.ErrInvalidPercentage)
}

// The split-sum guarantee: platformFee + modelNetAmount == profit for
// every non-negative input pair, across percentages.
func TestAuctionPayoutSplitSum(t *testing.T) {
	for i := 0; i < 1000; i++ {
		start := decimal.New(int64(i*53%500000), -2)
		bid := start.Add(decimal.New(int64(i*101%700000), -2))
		pct := decimal.New(int64(i*91%10001), -2)

		got, err := CalculateAuctionPayout(bid, start, pct)
		require.NoError(t, err)
		require.True(t, got.PlatformFee.Add(got.ModelNetAmount).Equal(got.Profit),
			"bid=%s start=%s pct=%s fee=%s net=%s profit=%s",
			bid, start, pct, got.PlatformFee, got.ModelNetAmount, got.Profit)
		require.False(t, got.PlatformFee.IsNegative())
		require.False(t, got.ModelNetAmount.IsNegative())
	}
}

func TestAuctionPayoutClampNeverNegative(t *testing.T) {
	for i := 0; i < 200; i++ {
		bid := decimal.New(int64(i*31%100000), -2)
		start := bid.Add(decimal.New(int64(1+i*17%100000), -2)) // strictly above bid

		got, err := CalculateAuctionPayout(bid, start, dec("25"))
		require.NoError(t, err)
		require.True(t, got.Profit.IsZero())
		require.True(t, got.PlatformFee.IsZero())
		require.True(t, got.ModelNetAmount.IsZero())
	}
}
