// Package stripe is a thin REST client for the Stripe API: payment intents,
// checkout sessions, Connect accounts, transfers, and balances. Requests are
// form-encoded per Stripe's API conventions; mutating calls carry an
// idempotency key so a retried request cannot double-charge.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// maxErrorBody caps how much of an upstream error response is read back.
const maxErrorBody = 4096

// Client is the REST client for the Stripe API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new Stripe API client.
//
// baseURL is the API root, e.g. "https://api.stripe.com".
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreatePaymentIntent creates a PaymentIntent for the given amount. The
// amount is a 2dp decimal in major units; Stripe receives integer minor
// units. metadata rides along so the webhook can locate the transaction.
func (c *Client) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, idempotencyKey string, metadata map[string]string) (APIPaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(decimalToMinorUnits(amount), 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	body, err := c.doPost(ctx, "/v1/payment_intents", form, idempotencyKey)
	if err != nil {
		return APIPaymentIntent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	var pi APIPaymentIntent
	if err := json.Unmarshal(body, &pi); err != nil {
		return APIPaymentIntent{}, fmt.Errorf("stripe: decode payment intent: %w", err)
	}
	return pi, nil
}

// CreateCheckoutSession creates a hosted Checkout Session for a single line
// item and returns the redirect URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, amount decimal.Decimal, currency, productName, successURL, cancelURL, idempotencyKey string, metadata map[string]string) (APICheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
	form.Set("line_items[0][price_data][product_data][name]", productName)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(decimalToMinorUnits(amount), 10))
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	body, err := c.doPost(ctx, "/v1/checkout/sessions", form, idempotencyKey)
	if err != nil {
		return APICheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	var cs APICheckoutSession
	if err := json.Unmarshal(body, &cs); err != nil {
		return APICheckoutSession{}, fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	return cs, nil
}

// doPost sends a form-encoded POST to the Stripe API. idempotencyKey may be
// empty for calls that are naturally idempotent.
func (c *Client) doPost(ctx context.Context, path string, form url.Values, idempotencyKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	return c.do(req)
}

// doGet sends a GET to the Stripe API.
func (c *Client) doGet(ctx context.Context, path string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, checkHTTPStatus(resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
