package domain

import "time"

// ProfileRole distinguishes professionals from buyers and staff.
type ProfileRole string

const (
	RoleModel  ProfileRole = "model"
	RoleClient ProfileRole = "client"
	RoleAdmin  ProfileRole = "admin"
)

// Profile is a platform account: a beauty professional, a paying
// client, or an admin.
type Profile struct {
	ID              string
	Email           string
	EmailVerified   bool
	Phone           string // E.164
	PhoneVerified   bool
	DisplayName     string
	Role            ProfileRole
	StripeAccountID string // Connect account, empty until onboarded
	PreferredRail   PayoutRail
	BankIBAN        string
	PayPalEmail     string
	WalletAddress   string // EIP-55 checksummed
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OTPPurpose names what a one-time code verifies.
type OTPPurpose string

const (
	OTPPurposeEmail OTPPurpose = "email"
	OTPPurposePhone OTPPurpose = "phone"
)

// OTPChallenge is a pending verification code. Only the bcrypt digest
// of the code is ever stored.
type OTPChallenge struct {
	ProfileID   string
	Purpose     OTPPurpose
	Destination string // email address or phone the code was sent to
	CodeHash    []byte
	Attempts    int
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
