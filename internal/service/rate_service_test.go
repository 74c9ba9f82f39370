package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
)

func newRateFixture() (*RateService, *memRateCache) {
	cache := newMemRateCache()
	svc := NewRateService(cache, []domain.ExchangeRate{
		{Base: "USD", Quote: "AED", Price: d("3.6725")},
	}, testLogger())
	return svc, cache
}

func TestCurrentSeedsCacheFromPeg(t *testing.T) {
	svc, cache := newRateFixture()
	ctx := context.Background()

	rate, err := svc.Current(ctx, "USD", "AED")
	require.NoError(t, err)
	requireDec(t, "3.6725", rate.Price)

	seeded, err := cache.GetRate(ctx, "USD", "AED")
	require.NoError(t, err)
	requireDec(t, "3.6725", seeded.Price)
	require.False(t, seeded.FetchedAt.IsZero())

	_, err = svc.Current(ctx, "USD", "EUR")
	require.ErrorIs(t, err, domain.ErrRateMismatch)
}

func TestCurrentPrefersCachedRate(t *testing.T) {
	svc, cache := newRateFixture()
	ctx := context.Background()

	require.NoError(t, cache.SetRate(ctx, domain.ExchangeRate{
		Base: "USD", Quote: "AED", Price: d("3.70"), Version: 5,
	}))

	rate, err := svc.Current(ctx, "USD", "AED")
	require.NoError(t, err)
	requireDec(t, "3.70", rate.Price)
	require.EqualValues(t, 5, rate.Version)
}

func TestConvert(t *testing.T) {
	svc, _ := newRateFixture()
	ctx := context.Background()

	// Base to quote multiplies, quote to base divides.
	got, err := svc.Convert(ctx, d("100"), "USD", "AED")
	require.NoError(t, err)
	requireDec(t, "367.25", got)

	got, err = svc.Convert(ctx, d("110"), "AED", "USD")
	require.NoError(t, err)
	requireDec(t, "29.95", got)

	got, err = svc.Convert(ctx, d("42.005"), "AED", "AED")
	require.NoError(t, err)
	requireDec(t, "42.01", got)

	_, err = svc.Convert(ctx, d("10"), "AED", "EUR")
	require.ErrorIs(t, err, domain.ErrRateMismatch)
}

func TestRefreshBumpsVersions(t *testing.T) {
	svc, cache := newRateFixture()
	ctx := context.Background()

	require.NoError(t, svc.Refresh(ctx))
	rate, err := cache.GetRate(ctx, "USD", "AED")
	require.NoError(t, err)
	require.EqualValues(t, 1, rate.Version)

	require.NoError(t, svc.Refresh(ctx))
	rate, err = cache.GetRate(ctx, "USD", "AED")
	require.NoError(t, err)
	require.EqualValues(t, 2, rate.Version)
}
