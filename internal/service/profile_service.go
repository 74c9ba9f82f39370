package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/platform/stripe"
)

// otpDigits is the length of a verification code.
const otpDigits = 6

// ConnectGateway is the slice of the Stripe client the onboarding flow
// uses.
type ConnectGateway interface {
	CreateAccount(ctx context.Context, email, country string) (stripe.APIAccount, error)
	GetAccount(ctx context.Context, accountID string) (stripe.APIAccount, error)
	CreateAccountSession(ctx context.Context, accountID string) (stripe.APIAccountSession, error)
	GetAccountBalance(ctx context.Context, accountID string) (stripe.Balance, error)
	CreateTransfer(ctx context.Context, destAccount string, amount decimal.Decimal, currency, idempotencyKey string) (string, error)
}

// OTPSender delivers a verification code over one channel. Implemented
// by the Resend and WhatsApp clients.
type OTPSender interface {
	SendOTP(ctx context.Context, destination, code string) (string, error)
}

// ProfileService owns platform accounts: email and phone verification
// via one-time codes, profile edits, and Stripe Connect onboarding.
type ProfileService struct {
	profiles    domain.ProfileStore
	otps        domain.OTPCache
	limiter     domain.RateLimiter
	email       OTPSender
	phone       OTPSender
	connect     ConnectGateway
	otpTTL      time.Duration
	maxAttempts int
	audit       domain.AuditStore
	logger      *slog.Logger
}

// NewProfileService creates a ProfileService with all required dependencies.
func NewProfileService(
	profiles domain.ProfileStore,
	otps domain.OTPCache,
	limiter domain.RateLimiter,
	email OTPSender,
	phone OTPSender,
	connect ConnectGateway,
	otpTTL time.Duration,
	maxAttempts int,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ProfileService {
	if otpTTL <= 0 {
		otpTTL = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &ProfileService{
		profiles:    profiles,
		otps:        otps,
		limiter:     limiter,
		email:       email,
		phone:       phone,
		connect:     connect,
		otpTTL:      otpTTL,
		maxAttempts: maxAttempts,
		audit:       audit,
		logger:      logger.With(slog.String("component", "profile_service")),
	}
}

// GetProfile retrieves an account by ID.
func (s *ProfileService) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("profile_service: get profile %q: %w", id, err)
	}
	return p, nil
}

// UpdateProfile applies account edits. Verified flags and the Stripe
// account link only change through their dedicated flows; editing the
// email or phone clears its verified flag.
func (s *ProfileService) UpdateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	current, err := s.profiles.GetByID(ctx, p.ID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("profile_service: get profile %q: %w", p.ID, err)
	}

	p.Role = current.Role
	p.StripeAccountID = current.StripeAccountID
	p.EmailVerified = current.EmailVerified && p.Email == current.Email
	p.PhoneVerified = current.PhoneVerified && p.Phone == current.Phone
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if err := s.profiles.Update(ctx, p); err != nil {
		return domain.Profile{}, fmt.Errorf("profile_service: update profile %q: %w", p.ID, err)
	}
	return p, nil
}

// StartEmailVerification sends a one-time code to the profile's email.
func (s *ProfileService) StartEmailVerification(ctx context.Context, profileID string) error {
	return s.startVerification(ctx, profileID, domain.OTPPurposeEmail)
}

// ConfirmEmail checks the submitted code and marks the email verified.
func (s *ProfileService) ConfirmEmail(ctx context.Context, profileID, code string) error {
	return s.confirm(ctx, profileID, domain.OTPPurposeEmail, code)
}

// StartPhoneVerification sends a one-time code over WhatsApp.
func (s *ProfileService) StartPhoneVerification(ctx context.Context, profileID string) error {
	return s.startVerification(ctx, profileID, domain.OTPPurposePhone)
}

// ConfirmPhone checks the submitted code and marks the phone verified.
func (s *ProfileService) ConfirmPhone(ctx context.Context, profileID, code string) error {
	return s.confirm(ctx, profileID, domain.OTPPurposePhone, code)
}

func (s *ProfileService) startVerification(ctx context.Context, profileID string, purpose domain.OTPPurpose) error {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return fmt.Errorf("profile_service: profile %q: %w", profileID, err)
	}

	destination := profile.Email
	sender := s.email
	if purpose == domain.OTPPurposePhone {
		destination = profile.Phone
		sender = s.phone
	}
	if destination == "" {
		return fmt.Errorf("profile_service: profile %q has no %s destination: %w", profileID, purpose, domain.ErrConflict)
	}

	// Throttle per destination, not per profile, so re-registering
	// cannot spam the same inbox.
	allowed, err := s.limiter.Allow(ctx, "otp:"+string(purpose)+":"+destination, 3, time.Hour)
	if err == nil && !allowed {
		return fmt.Errorf("profile_service: verification sends: %w", domain.ErrRateLimited)
	}

	code, err := generateOTP()
	if err != nil {
		return fmt.Errorf("profile_service: generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("profile_service: hash code: %w", err)
	}

	now := time.Now().UTC()
	challenge := domain.OTPChallenge{
		ProfileID:   profileID,
		Purpose:     purpose,
		Destination: destination,
		CodeHash:    hash,
		ExpiresAt:   now.Add(s.otpTTL),
		CreatedAt:   now,
	}
	if err := s.otps.Put(ctx, challenge); err != nil {
		return fmt.Errorf("profile_service: store challenge: %w", err)
	}

	if _, err := sender.SendOTP(ctx, destination, code); err != nil {
		// Drop the challenge so a delivery retry mints a fresh code.
		if delErr := s.otps.Delete(ctx, profileID, purpose); delErr != nil {
			s.logger.WarnContext(ctx, "challenge cleanup failed", slog.String("error", delErr.Error()))
		}
		return fmt.Errorf("profile_service: send code: %w", err)
	}

	s.auditLog(ctx, "profile.otp_sent", map[string]any{
		"profile_id": profileID,
		"purpose":    string(purpose),
	})
	s.logger.InfoContext(ctx, "verification code sent",
		slog.String("profile_id", profileID),
		slog.String("purpose", string(purpose)),
	)
	return nil
}

func (s *ProfileService) confirm(ctx context.Context, profileID string, purpose domain.OTPPurpose, code string) error {
	challenge, err := s.otps.Get(ctx, profileID, purpose)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("profile_service: no pending challenge: %w", domain.ErrUnauthorized)
		}
		return fmt.Errorf("profile_service: get challenge: %w", err)
	}
	if !time.Now().UTC().Before(challenge.ExpiresAt) {
		_ = s.otps.Delete(ctx, profileID, purpose)
		return fmt.Errorf("profile_service: challenge expired: %w", domain.ErrUnauthorized)
	}

	attempts, err := s.otps.IncrementAttempts(ctx, profileID, purpose)
	if err != nil {
		return fmt.Errorf("profile_service: count attempt: %w", err)
	}
	if attempts > s.maxAttempts {
		_ = s.otps.Delete(ctx, profileID, purpose)
		s.auditLog(ctx, "profile.otp_locked", map[string]any{
			"profile_id": profileID,
			"purpose":    string(purpose),
		})
		return fmt.Errorf("profile_service: attempts exhausted: %w", domain.ErrRateLimited)
	}

	if bcrypt.CompareHashAndPassword(challenge.CodeHash, []byte(code)) != nil {
		return fmt.Errorf("profile_service: wrong code: %w", domain.ErrUnauthorized)
	}

	if purpose == domain.OTPPurposePhone {
		err = s.profiles.SetPhoneVerified(ctx, profileID)
	} else {
		err = s.profiles.SetEmailVerified(ctx, profileID)
	}
	if err != nil {
		return fmt.Errorf("profile_service: mark verified: %w", err)
	}
	if err := s.otps.Delete(ctx, profileID, purpose); err != nil {
		s.logger.WarnContext(ctx, "challenge cleanup failed", slog.String("error", err.Error()))
	}

	s.auditLog(ctx, "profile.verified", map[string]any{
		"profile_id": profileID,
		"purpose":    string(purpose),
	})
	s.logger.InfoContext(ctx, "destination verified",
		slog.String("profile_id", profileID),
		slog.String("purpose", string(purpose)),
	)
	return nil
}

// CreateConnectAccount opens a Stripe Express account for a
// professional and links it to the profile. Idempotent: an already
// linked profile gets its existing account back.
func (s *ProfileService) CreateConnectAccount(ctx context.Context, profileID, country string) (stripe.APIAccount, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return stripe.APIAccount{}, fmt.Errorf("profile_service: profile %q: %w", profileID, err)
	}
	if profile.StripeAccountID != "" {
		acct, err := s.connect.GetAccount(ctx, profile.StripeAccountID)
		if err != nil {
			return stripe.APIAccount{}, fmt.Errorf("profile_service: existing account: %w", err)
		}
		return acct, nil
	}
	if !profile.EmailVerified {
		return stripe.APIAccount{}, fmt.Errorf("profile_service: email not verified: %w", domain.ErrForbidden)
	}

	acct, err := s.connect.CreateAccount(ctx, profile.Email, country)
	if err != nil {
		return stripe.APIAccount{}, fmt.Errorf("profile_service: create account: %w", err)
	}
	if err := s.profiles.SetStripeAccount(ctx, profileID, acct.ID); err != nil {
		return stripe.APIAccount{}, fmt.Errorf("profile_service: link account: %w", err)
	}

	s.auditLog(ctx, "stripe.account_created", map[string]any{
		"profile_id": profileID,
		"account_id": acct.ID,
	})
	s.logger.InfoContext(ctx, "connect account created",
		slog.String("profile_id", profileID),
		slog.String("account_id", acct.ID),
	)
	return acct, nil
}

// CreateAccountSession mints an embedded-onboarding session for the
// profile's connected account.
func (s *ProfileService) CreateAccountSession(ctx context.Context, profileID string) (stripe.APIAccountSession, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return stripe.APIAccountSession{}, fmt.Errorf("profile_service: profile %q: %w", profileID, err)
	}
	if profile.StripeAccountID == "" {
		return stripe.APIAccountSession{}, fmt.Errorf("profile_service: no connected account: %w", domain.ErrConflict)
	}
	session, err := s.connect.CreateAccountSession(ctx, profile.StripeAccountID)
	if err != nil {
		return stripe.APIAccountSession{}, fmt.Errorf("profile_service: account session: %w", err)
	}
	return session, nil
}

// AccountBalance reads the profile's Stripe balance buckets.
func (s *ProfileService) AccountBalance(ctx context.Context, profileID string) (stripe.Balance, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return stripe.Balance{}, fmt.Errorf("profile_service: profile %q: %w", profileID, err)
	}
	if profile.StripeAccountID == "" {
		return stripe.Balance{}, fmt.Errorf("profile_service: no connected account: %w", domain.ErrConflict)
	}
	balance, err := s.connect.GetAccountBalance(ctx, profile.StripeAccountID)
	if err != nil {
		return stripe.Balance{}, fmt.Errorf("profile_service: account balance: %w", err)
	}
	return balance, nil
}

// ManualTransfer moves platform funds to the profile's connected
// account outside the payout batch. Admin-gated at the handler; the
// transfer ID doubles as the audit reference.
func (s *ProfileService) ManualTransfer(ctx context.Context, profileID string, amount decimal.Decimal, currency string) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("profile_service: transfer amount %s: %w", amount, domain.ErrInvalidAmount)
	}
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return "", fmt.Errorf("profile_service: profile %q: %w", profileID, err)
	}
	if profile.StripeAccountID == "" {
		return "", fmt.Errorf("profile_service: no connected account: %w", domain.ErrConflict)
	}

	idempotencyKey := "manual_" + uuid.NewString()
	transferID, err := s.connect.CreateTransfer(ctx, profile.StripeAccountID, amount, currency, idempotencyKey)
	if err != nil {
		return "", fmt.Errorf("profile_service: create transfer: %w", err)
	}

	s.auditLog(ctx, "stripe.manual_transfer", map[string]any{
		"profile_id":  profileID,
		"account_id":  profile.StripeAccountID,
		"amount":      amount.String(),
		"currency":    currency,
		"transfer_id": transferID,
	})
	s.logger.InfoContext(ctx, "manual transfer created",
		slog.String("profile_id", profileID),
		slog.String("transfer_id", transferID),
	)
	return transferID, nil
}

func (s *ProfileService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", slog.String("error", err.Error()))
	}
}

// generateOTP returns a uniformly random numeric code.
func generateOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
