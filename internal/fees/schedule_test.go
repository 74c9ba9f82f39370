package fees

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
)

func defaultRates() map[domain.FeeChannel]decimal.Decimal {
	return map[domain.FeeChannel]decimal.Decimal{
		domain.ChannelPaymentIntent: dec("5"),
		domain.ChannelCrossmint:     dec("9"),
		domain.ChannelCheckout:      dec("11"),
		domain.ChannelAuction:       dec("25"),
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubPolicyStore struct {
	rows []domain.FeePolicy
	err  error
}

func (s *stubPolicyStore) Upsert(ctx context.Context, p domain.FeePolicy) error { return nil }

func (s *stubPolicyStore) GetByChannel(ctx context.Context, ch domain.FeeChannel) (domain.FeePolicy, error) {
	return domain.FeePolicy{}, domain.ErrNotFound
}

func (s *stubPolicyStore) List(ctx context.Context) ([]domain.FeePolicy, error) {
	return s.rows, s.err
}

func TestScheduleRateFor(t *testing.T) {
	s, err := NewSchedule(defaultRates(), 1)
	require.NoError(t, err)

	pct, err := s.RateFor(domain.ChannelCheckout)
	require.NoError(t, err)
	require.True(t, pct.Equal(dec("11")))

	_, err = s.RateFor(domain.FeeChannel("unknown"))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewScheduleValidates(t *testing.T) {
	_, err := NewSchedule(nil, 1)
	require.Error(t, err)

	bad := defaultRates()
	bad[domain.ChannelAuction] = dec("150")
	_, err = NewSchedule(bad, 1)
	require.ErrorIs(t, err, domain.ErrInvalidPercentage)
}

func TestResolverFallsBackToDefaults(t *testing.T) {
	defaults, err := NewSchedule(defaultRates(), 1)
	require.NoError(t, err)

	for _, store := range []domain.FeePolicyStore{
		nil,
		&stubPolicyStore{},
		&stubPolicyStore{err: errors.New("connection refused")},
	} {
		r := NewResolver(store, defaults, discard())
		got := r.Resolve(context.Background())
		pct, err := got.RateFor(domain.ChannelAuction)
		require.NoError(t, err)
		require.True(t, pct.Equal(dec("25")))
	}
}

func TestResolverPoliciesOverrideDefaults(t *testing.T) {
	defaults, err := NewSchedule(defaultRates(), 1)
	require.NoError(t, err)

	store := &stubPolicyStore{rows: []domain.FeePolicy{
		{Channel: domain.ChannelCheckout, Percent: dec("12.5"), Version: 7, EffectiveAt: time.Now()},
		{Channel: domain.ChannelAuction, Percent: dec("999"), Version: 8}, // invalid, skipped
	}}
	r := NewResolver(store, defaults, discard())
	got := r.Resolve(context.Background())

	pct, err := got.RateFor(domain.ChannelCheckout)
	require.NoError(t, err)
	require.True(t, pct.Equal(dec("12.5")))

	pct, err = got.RateFor(domain.ChannelAuction)
	require.NoError(t, err)
	require.True(t, pct.Equal(dec("25")), "invalid row must not override")

	pct, err = got.RateFor(domain.ChannelPaymentIntent)
	require.NoError(t, err)
	require.True(t, pct.Equal(dec("5")), "untouched channels keep defaults")
}
