package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/platform/stripe"
)

type profileFixture struct {
	svc      *ProfileService
	profiles *fakeProfiles
	otps     *memOTPCache
	limiter  *fakeLimiter
	email    *fakeSender
	phone    *fakeSender
	connect  *fakeConnect
	audit    *fakeAudit
}

func newProfileFixture(t *testing.T, ps ...domain.Profile) *profileFixture {
	t.Helper()
	f := &profileFixture{
		profiles: newFakeProfiles(ps...),
		otps:     newMemOTPCache(),
		limiter:  &fakeLimiter{deny: map[string]bool{}},
		email:    &fakeSender{},
		phone:    &fakeSender{},
		connect: &fakeConnect{
			account:     stripeAccount(),
			session:     stripe.APIAccountSession{ClientSecret: "as_secret"},
			transferRef: "tr_manual",
		},
		audit: &fakeAudit{},
	}
	f.svc = NewProfileService(f.profiles, f.otps, f.limiter, f.email, f.phone,
		f.connect, 10*time.Minute, 3, f.audit, testLogger())
	return f
}

func unverifiedProfile() domain.Profile {
	return domain.Profile{
		ID:          "model-1",
		Email:       "model@example.com",
		Phone:       "+971501234567",
		DisplayName: "Layla",
		Role:        domain.RoleModel,
	}
}

func TestUpdateProfilePreservesGuardedFields(t *testing.T) {
	p := unverifiedProfile()
	p.EmailVerified = true
	p.PhoneVerified = true
	p.StripeAccountID = "acct_1"
	f := newProfileFixture(t, p)

	edit := p
	edit.DisplayName = "Layla A."
	edit.Role = domain.RoleAdmin
	edit.StripeAccountID = "acct_evil"

	got, err := f.svc.UpdateProfile(context.Background(), edit)
	require.NoError(t, err)
	require.Equal(t, "Layla A.", got.DisplayName)
	require.Equal(t, domain.RoleModel, got.Role)
	require.Equal(t, "acct_1", got.StripeAccountID)
	require.True(t, got.EmailVerified)
	require.True(t, got.PhoneVerified)
}

func TestUpdateProfileEditClearsVerifiedFlag(t *testing.T) {
	p := unverifiedProfile()
	p.EmailVerified = true
	p.PhoneVerified = true
	f := newProfileFixture(t, p)

	edit := p
	edit.Email = "new@example.com"

	got, err := f.svc.UpdateProfile(context.Background(), edit)
	require.NoError(t, err)
	require.False(t, got.EmailVerified, "changing the email drops its verification")
	require.True(t, got.PhoneVerified, "untouched phone stays verified")
}

func TestEmailVerificationRoundTrip(t *testing.T) {
	f := newProfileFixture(t, unverifiedProfile())
	ctx := context.Background()

	require.NoError(t, f.svc.StartEmailVerification(ctx, "model-1"))
	require.Len(t, f.email.codes, 1)
	code := f.email.codes[0]
	require.Len(t, code, 6)

	require.NoError(t, f.svc.ConfirmEmail(ctx, "model-1", code))

	p, _ := f.profiles.GetByID(ctx, "model-1")
	require.True(t, p.EmailVerified)

	// The challenge is consumed; a second confirm has nothing to match.
	err := f.svc.ConfirmEmail(ctx, "model-1", code)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPhoneVerificationRoundTrip(t *testing.T) {
	f := newProfileFixture(t, unverifiedProfile())
	ctx := context.Background()

	require.NoError(t, f.svc.StartPhoneVerification(ctx, "model-1"))
	require.Len(t, f.phone.codes, 1)

	require.NoError(t, f.svc.ConfirmPhone(ctx, "model-1", f.phone.codes[0]))
	p, _ := f.profiles.GetByID(ctx, "model-1")
	require.True(t, p.PhoneVerified)
}

func TestStartVerificationGuards(t *testing.T) {
	noPhone := unverifiedProfile()
	noPhone.Phone = ""
	f := newProfileFixture(t, noPhone)
	ctx := context.Background()

	err := f.svc.StartPhoneVerification(ctx, "model-1")
	require.ErrorIs(t, err, domain.ErrConflict)

	f.limiter.deny["otp:email:model@example.com"] = true
	err = f.svc.StartEmailVerification(ctx, "model-1")
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestStartVerificationSendFailureDropsChallenge(t *testing.T) {
	f := newProfileFixture(t, unverifiedProfile())
	f.email.err = errors.New("provider down")
	ctx := context.Background()

	err := f.svc.StartEmailVerification(ctx, "model-1")
	require.Error(t, err)

	_, err = f.otps.Get(ctx, "model-1", domain.OTPPurposeEmail)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConfirmWrongCodeAndLockout(t *testing.T) {
	f := newProfileFixture(t, unverifiedProfile())
	ctx := context.Background()
	require.NoError(t, f.svc.StartEmailVerification(ctx, "model-1"))

	for i := 0; i < 3; i++ {
		err := f.svc.ConfirmEmail(ctx, "model-1", "000000")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	}

	// The fourth attempt crosses maxAttempts and burns the challenge,
	// even with the right code.
	err := f.svc.ConfirmEmail(ctx, "model-1", f.email.codes[0])
	require.ErrorIs(t, err, domain.ErrRateLimited)

	err = f.svc.ConfirmEmail(ctx, "model-1", f.email.codes[0])
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestConfirmExpiredChallenge(t *testing.T) {
	f := newProfileFixture(t, unverifiedProfile())
	ctx := context.Background()
	require.NoError(t, f.otps.Put(ctx, domain.OTPChallenge{
		ProfileID: "model-1",
		Purpose:   domain.OTPPurposeEmail,
		CodeHash:  []byte("x"),
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}))

	err := f.svc.ConfirmEmail(ctx, "model-1", "123456")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCreateConnectAccount(t *testing.T) {
	verified := unverifiedProfile()
	verified.EmailVerified = true
	f := newProfileFixture(t, verified)
	ctx := context.Background()

	acct, err := f.svc.CreateConnectAccount(ctx, "model-1", "AE")
	require.NoError(t, err)
	require.Equal(t, "acct_1", acct.ID)
	require.Equal(t, []string{"model@example.com"}, f.connect.created)

	p, _ := f.profiles.GetByID(ctx, "model-1")
	require.Equal(t, "acct_1", p.StripeAccountID)

	// Linked profiles get the existing account, no second creation.
	_, err = f.svc.CreateConnectAccount(ctx, "model-1", "AE")
	require.NoError(t, err)
	require.Len(t, f.connect.created, 1)
}

func TestCreateConnectAccountRequiresVerifiedEmail(t *testing.T) {
	f := newProfileFixture(t, unverifiedProfile())

	_, err := f.svc.CreateConnectAccount(context.Background(), "model-1", "AE")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAccountSessionAndBalanceRequireLink(t *testing.T) {
	f := newProfileFixture(t, unverifiedProfile())
	ctx := context.Background()

	_, err := f.svc.CreateAccountSession(ctx, "model-1")
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.AccountBalance(ctx, "model-1")
	require.ErrorIs(t, err, domain.ErrConflict)

	linked := unverifiedProfile()
	linked.StripeAccountID = "acct_1"
	require.NoError(t, f.profiles.Update(ctx, linked))

	session, err := f.svc.CreateAccountSession(ctx, "model-1")
	require.NoError(t, err)
	require.Equal(t, "as_secret", session.ClientSecret)
}

func TestManualTransfer(t *testing.T) {
	linked := unverifiedProfile()
	linked.StripeAccountID = "acct_1"
	f := newProfileFixture(t, linked)
	ctx := context.Background()

	ref, err := f.svc.ManualTransfer(ctx, "model-1", d("75"), "AED")
	require.NoError(t, err)
	require.Equal(t, "tr_manual", ref)
	require.Len(t, f.connect.transfers, 1)

	_, err = f.svc.ManualTransfer(ctx, "model-1", d("0"), "AED")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}
