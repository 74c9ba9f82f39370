package stripe

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// APIPaymentIntent is the subset of Stripe's PaymentIntent object this
// server reads.
type APIPaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// APICheckoutSession is the subset of Stripe's Checkout Session object this
// server reads.
type APICheckoutSession struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Status   string `json:"status"`
	Currency string `json:"currency"`
}

// APITransfer is the subset of Stripe's Transfer object this server reads.
type APITransfer struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

// APIAccount is the subset of Stripe's Connect Account object this server
// reads.
type APIAccount struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// APIAccountSession is Stripe's Account Session object: a short-lived client
// secret the embedded onboarding UI consumes.
type APIAccountSession struct {
	ClientSecret string `json:"client_secret"`
}

// APIBalanceAmount is one bucket of an account balance.
type APIBalanceAmount struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// APIBalance is the subset of Stripe's Balance object this server reads.
type APIBalance struct {
	Available []APIBalanceAmount `json:"available"`
	Pending   []APIBalanceAmount `json:"pending"`
}

// Balance is the shaped Connect account balance returned to callers.
type Balance struct {
	Available map[string]decimal.Decimal
	Pending   map[string]decimal.Decimal
}

// ToBalance converts Stripe's minor-unit integer buckets into decimal
// amounts keyed by uppercase currency code.
func (b APIBalance) ToBalance() Balance {
	out := Balance{
		Available: make(map[string]decimal.Decimal, len(b.Available)),
		Pending:   make(map[string]decimal.Decimal, len(b.Pending)),
	}
	for _, a := range b.Available {
		out.Available[upper(a.Currency)] = minorUnitsToDecimal(a.Amount)
	}
	for _, a := range b.Pending {
		out.Pending[upper(a.Currency)] = minorUnitsToDecimal(a.Amount)
	}
	return out
}

// minorUnitsToDecimal converts Stripe integer minor units (cents) to a 2dp
// decimal amount.
func minorUnitsToDecimal(n int64) decimal.Decimal {
	return decimal.NewFromInt(n).Shift(-2)
}

// decimalToMinorUnits converts a 2dp decimal amount to Stripe integer minor
// units. Amounts are rounded half away from zero first, so a caller passing
// an already-rounded fee result loses nothing.
func decimalToMinorUnits(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func upper(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
