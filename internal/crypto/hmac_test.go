package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStripeVerifierRoundTrip(t *testing.T) {
	v := &StripeVerifier{Secret: "whsec_test", Tolerance: 5 * time.Minute}
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	header := v.SignatureHeader(payload, now.Unix())
	require.NoError(t, v.VerifyAt(payload, header, now))

	// Clock slightly ahead of the timestamp is still inside tolerance.
	require.NoError(t, v.VerifyAt(payload, header, now.Add(4*time.Minute)))
}

func TestStripeVerifierRejectsTamperedPayload(t *testing.T) {
	v := &StripeVerifier{Secret: "whsec_test", Tolerance: 5 * time.Minute}
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	header := v.SignatureHeader([]byte(`{"amount":100}`), now.Unix())
	err := v.VerifyAt([]byte(`{"amount":999}`), header, now)
	require.Error(t, err)
}

func TestStripeVerifierRejectsStaleTimestamp(t *testing.T) {
	v := &StripeVerifier{Secret: "whsec_test", Tolerance: 5 * time.Minute}
	payload := []byte(`{}`)
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	header := v.SignatureHeader(payload, now.Add(-10*time.Minute).Unix())
	err := v.VerifyAt(payload, header, now)
	require.Error(t, err)
	require.Contains(t, err.Error(), "tolerance")

	// Timestamps from the future are rejected the same way.
	header = v.SignatureHeader(payload, now.Add(10*time.Minute).Unix())
	require.Error(t, v.VerifyAt(payload, header, now))
}

func TestStripeVerifierRejectsWrongSecret(t *testing.T) {
	signer := &StripeVerifier{Secret: "whsec_a", Tolerance: 5 * time.Minute}
	verifier := &StripeVerifier{Secret: "whsec_b", Tolerance: 5 * time.Minute}
	payload := []byte(`{}`)
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	header := signer.SignatureHeader(payload, now.Unix())
	require.Error(t, verifier.VerifyAt(payload, header, now))
}

func TestStripeVerifierMalformedHeaders(t *testing.T) {
	v := &StripeVerifier{Secret: "whsec_test", Tolerance: 5 * time.Minute}
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	cases := []string{
		"",
		"v1=deadbeef",
		"t=1752580800",
		"t=notanumber,v1=deadbeef",
	}
	for _, header := range cases {
		require.Error(t, v.VerifyAt([]byte(`{}`), header, now), "header %q", header)
	}
}

func TestStripeVerifierAcceptsAnyMatchingV1(t *testing.T) {
	v := &StripeVerifier{Secret: "whsec_test", Tolerance: 5 * time.Minute}
	payload := []byte(`{"id":"evt_2"}`)
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	good := v.SignatureHeader(payload, now.Unix())
	// Surround the valid candidate with a junk v1 and a v0 scheme.
	mixed := "v0=ignored," + good + ",v1=deadbeef"
	require.NoError(t, v.VerifyAt(payload, mixed, now))
}

func TestStripeVerifierEmptySecret(t *testing.T) {
	v := &StripeVerifier{Tolerance: 5 * time.Minute}
	require.Error(t, v.VerifyAt([]byte(`{}`), "t=1,v1=aa", time.Now()))
}

func TestCrossmintVerifierRoundTrip(t *testing.T) {
	v := &CrossmintVerifier{Secret: "cm_secret"}
	payload := []byte(`{"type":"orders.payment.succeeded"}`)

	sig := v.Signature(payload)
	require.NoError(t, v.Verify(payload, sig))

	// The sha256= prefix some senders add is tolerated.
	require.NoError(t, v.Verify(payload, "sha256="+sig))
}

func TestCrossmintVerifierRejects(t *testing.T) {
	v := &CrossmintVerifier{Secret: "cm_secret"}
	payload := []byte(`{"type":"orders.payment.succeeded"}`)
	sig := v.Signature(payload)

	require.Error(t, v.Verify([]byte(`{"type":"tampered"}`), sig))
	require.Error(t, v.Verify(payload, "nothex!"))
	require.Error(t, v.Verify(payload, ""))

	other := &CrossmintVerifier{Secret: "different"}
	require.Error(t, other.Verify(payload, sig))
}

func TestVerifierStringRedacts(t *testing.T) {
	sv := &StripeVerifier{Secret: "whsec_supersecret", Tolerance: time.Minute}
	require.NotContains(t, sv.String(), "supersecret")

	cv := &CrossmintVerifier{Secret: "cm_supersecret"}
	require.NotContains(t, cv.String(), "supersecret")
}
