package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CreateAccount creates an Express Connect account for a professional and
// returns its ID.
func (c *Client) CreateAccount(ctx context.Context, email, country string) (APIAccount, error) {
	form := url.Values{}
	form.Set("type", "express")
	form.Set("email", email)
	form.Set("country", country)
	form.Set("capabilities[transfers][requested]", "true")

	body, err := c.doPost(ctx, "/v1/accounts", form, "")
	if err != nil {
		return APIAccount{}, fmt.Errorf("stripe: create connect account: %w", err)
	}

	var acct APIAccount
	if err := json.Unmarshal(body, &acct); err != nil {
		return APIAccount{}, fmt.Errorf("stripe: decode connect account: %w", err)
	}
	return acct, nil
}

// GetAccount retrieves a Connect account's onboarding state.
func (c *Client) GetAccount(ctx context.Context, accountID string) (APIAccount, error) {
	body, err := c.doGet(ctx, "/v1/accounts/"+url.PathEscape(accountID), nil)
	if err != nil {
		return APIAccount{}, fmt.Errorf("stripe: get connect account %s: %w", accountID, err)
	}

	var acct APIAccount
	if err := json.Unmarshal(body, &acct); err != nil {
		return APIAccount{}, fmt.Errorf("stripe: decode connect account: %w", err)
	}
	return acct, nil
}

// CreateAccountSession creates an Account Session for the embedded
// onboarding component and returns its client secret.
func (c *Client) CreateAccountSession(ctx context.Context, accountID string) (APIAccountSession, error) {
	form := url.Values{}
	form.Set("account", accountID)
	form.Set("components[account_onboarding][enabled]", "true")

	body, err := c.doPost(ctx, "/v1/account_sessions", form, "")
	if err != nil {
		return APIAccountSession{}, fmt.Errorf("stripe: create account session: %w", err)
	}

	var sess APIAccountSession
	if err := json.Unmarshal(body, &sess); err != nil {
		return APIAccountSession{}, fmt.Errorf("stripe: decode account session: %w", err)
	}
	return sess, nil
}

// GetAccountBalance retrieves the balance of a Connect account via the
// Stripe-Account header.
func (c *Client) GetAccountBalance(ctx context.Context, accountID string) (Balance, error) {
	header := http.Header{}
	header.Set("Stripe-Account", accountID)

	body, err := c.doGet(ctx, "/v1/balance", header)
	if err != nil {
		return Balance{}, fmt.Errorf("stripe: get account balance %s: %w", accountID, err)
	}

	var bal APIBalance
	if err := json.Unmarshal(body, &bal); err != nil {
		return Balance{}, fmt.Errorf("stripe: decode balance: %w", err)
	}
	return bal.ToBalance(), nil
}

// CreateTransfer moves platform funds to a Connect account. This is the
// bank-transfer payout rail: Stripe settles the transferred balance to the
// professional's bank on their own schedule. Returns the transfer ID.
func (c *Client) CreateTransfer(ctx context.Context, destAccount string, amount decimal.Decimal, currency, idempotencyKey string) (string, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(decimalToMinorUnits(amount), 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("destination", destAccount)

	body, err := c.doPost(ctx, "/v1/transfers", form, idempotencyKey)
	if err != nil {
		return "", fmt.Errorf("stripe: create transfer to %s: %w", destAccount, err)
	}

	var tr APITransfer
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("stripe: decode transfer: %w", err)
	}
	return tr.ID, nil
}
