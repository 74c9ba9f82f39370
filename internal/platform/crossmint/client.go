// Package crossmint is a thin REST client for the Crossmint API: crypto
// checkout orders and treasury wallet transfers. Requests are JSON with an
// X-API-KEY header; the environment selects the staging or production host.
package crossmint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// maxErrorBody caps how much of an upstream error response is read back.
const maxErrorBody = 4096

// API hosts per environment.
const (
	productionBaseURL = "https://www.crossmint.com/api"
	stagingBaseURL    = "https://staging.crossmint.com/api"
)

// Client is the REST client for the Crossmint API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Crossmint API client for the given environment
// ("production" or anything else for staging).
func NewClient(apiKey, environment string) *Client {
	base := stagingBaseURL
	if strings.EqualFold(environment, "production") {
		base = productionBaseURL
	}
	return &Client{
		baseURL: base,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateOrder opens a crypto checkout order for the given amount and returns
// the order with its client secret for the embedded checkout UI.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description, receiptEmail string) (APIOrder, error) {
	reqBody := APIOrderRequest{
		Payment: APIOrderPayment{
			Method:       "checkout",
			Currency:     strings.ToLower(currency),
			ReceiptEmail: receiptEmail,
		},
		LineItems: []APIOrderLineItem{{
			Price:       amount.StringFixed(2),
			Description: description,
		}},
	}

	body, err := c.doJSON(ctx, http.MethodPost, "/2022-06-09/orders", reqBody)
	if err != nil {
		return APIOrder{}, fmt.Errorf("crossmint: create order: %w", err)
	}

	var order APIOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return APIOrder{}, fmt.Errorf("crossmint: decode order: %w", err)
	}
	return order, nil
}

// GetOrder retrieves an order's current phase and payment status.
func (c *Client) GetOrder(ctx context.Context, orderID string) (APIOrder, error) {
	body, err := c.doJSON(ctx, http.MethodGet, "/2022-06-09/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return APIOrder{}, fmt.Errorf("crossmint: get order %s: %w", orderID, err)
	}

	var order APIOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return APIOrder{}, fmt.Errorf("crossmint: decode order: %w", err)
	}
	return order, nil
}

// TransferToken moves stablecoin from the platform treasury wallet to an
// external wallet. This is the crypto payout rail; the returned reference is
// the transfer ID (or transaction hash once mined).
func (c *Client) TransferToken(ctx context.Context, wallet string, amount decimal.Decimal, currency string) (string, error) {
	reqBody := APITransferRequest{
		Recipient: wallet,
		Amount:    amount.StringFixed(2),
		Token:     strings.ToLower(currency),
	}

	body, err := c.doJSON(ctx, http.MethodPost, "/v1-alpha2/wallets/transfers", reqBody)
	if err != nil {
		return "", fmt.Errorf("crossmint: transfer to %s: %w", wallet, err)
	}

	var tr APITransfer
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("crossmint: decode transfer: %w", err)
	}
	if tr.TxHash != "" {
		return tr.TxHash, nil
	}
	return tr.ID, nil
}

// doJSON sends a JSON request to the Crossmint API. payload may be nil for
// GET calls.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

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
