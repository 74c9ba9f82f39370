package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StripeVerifier checks Stripe-Signature headers for one endpoint secret.
// Stripe signs the string "<timestamp>.<raw body>" with HMAC-SHA256 and
// sends the result hex-encoded in one or more v1 fields:
//
//	Stripe-Signature: t=1492774577,v1=5257a869e7...,v1=...
type StripeVerifier struct {
	Secret    string
	Tolerance time.Duration
}

// Verify checks header against payload using the current clock. Any error
// means the event must be rejected.
func (v *StripeVerifier) Verify(payload []byte, header string) error {
	return v.VerifyAt(payload, header, time.Now())
}

// VerifyAt is like Verify but lets the caller supply the clock (useful for
// deterministic testing).
func (v *StripeVerifier) VerifyAt(payload []byte, header string, now time.Time) error {
	if v.Secret == "" {
		return errors.New("crypto: stripe webhook secret not configured")
	}

	ts, candidates, err := parseStripeHeader(header)
	if err != nil {
		return err
	}

	if v.Tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > v.Tolerance || age < -v.Tolerance {
			return fmt.Errorf("crypto: stripe signature timestamp outside tolerance (age %s)", age)
		}
	}

	signed := strconv.FormatInt(ts, 10) + "." + string(payload)
	expected := hmacSHA256([]byte(v.Secret), []byte(signed))

	for _, c := range candidates {
		got, err := hex.DecodeString(c)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			return nil
		}
	}
	return errors.New("crypto: no matching stripe v1 signature")
}

// SignatureHeader builds a valid Stripe-Signature header for payload at the
// given Unix timestamp. Used by tests and the webhook replay tool.
func (v *StripeVerifier) SignatureHeader(payload []byte, unixTS int64) string {
	ts := strconv.FormatInt(unixTS, 10)
	sig := hmacSHA256Hex([]byte(v.Secret), []byte(ts+"."+string(payload)))
	return "t=" + ts + ",v1=" + sig
}

// parseStripeHeader splits a Stripe-Signature header into the timestamp and
// the list of v1 signature candidates. Unknown schemes (v0 etc.) are ignored.
func parseStripeHeader(header string) (int64, []string, error) {
	var (
		ts         int64
		tsSeen     bool
		candidates []string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("crypto: bad stripe timestamp %q: %w", val, err)
			}
			ts = n
			tsSeen = true
		case "v1":
			candidates = append(candidates, val)
		}
	}
	if !tsSeen {
		return 0, nil, errors.New("crypto: stripe signature header missing t field")
	}
	if len(candidates) == 0 {
		return 0, nil, errors.New("crypto: stripe signature header missing v1 field")
	}
	return ts, candidates, nil
}

// CrossmintVerifier checks x-webhook-signature headers. Crossmint signs the
// raw body with HMAC-SHA256 and sends the result hex-encoded.
type CrossmintVerifier struct {
	Secret string
}

// Verify checks signature against payload. Any error means the event must be
// rejected.
func (v *CrossmintVerifier) Verify(payload []byte, signature string) error {
	if v.Secret == "" {
		return errors.New("crypto: crossmint webhook secret not configured")
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return fmt.Errorf("crypto: crossmint signature is not hex: %w", err)
	}
	expected := hmacSHA256([]byte(v.Secret), payload)
	if !hmac.Equal(expected, got) {
		return errors.New("crypto: crossmint signature mismatch")
	}
	return nil
}

// Signature computes the hex signature Crossmint would send for payload.
// Used by tests.
func (v *CrossmintVerifier) Signature(payload []byte) string {
	return hmacSHA256Hex([]byte(v.Secret), payload)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// hmacSHA256 computes HMAC-SHA256 of message using key.
func hmacSHA256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result hex-encoded.
func hmacSHA256Hex(key, message []byte) string {
	return hex.EncodeToString(hmacSHA256(key, message))
}

// String returns a redacted representation suitable for logging.
func (v *StripeVerifier) String() string {
	return fmt.Sprintf("StripeVerifier{secret=%s, tolerance=%s}", redactSecret(v.Secret), v.Tolerance)
}

// String returns a redacted representation suitable for logging.
func (v *CrossmintVerifier) String() string {
	return fmt.Sprintf("CrossmintVerifier{secret=%s}", redactSecret(v.Secret))
}

func redactSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
