// Package resend is a thin REST client for the Resend email API, used for
// email verification codes and payment receipts.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody caps how much of an upstream error response is read back.
const maxErrorBody = 4096

const baseURL = "https://api.resend.com"

// Client is the REST client for the Resend API.
type Client struct {
	apiKey     string
	from       string
	httpClient *http.Client
}

// NewClient creates a new Resend client. from is the verified sender
// address, e.g. "DECODE <noreply@decodebeauty.com>".
func NewClient(apiKey, from string) *Client {
	return &Client{
		apiKey: apiKey,
		from:   from,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// SendEmail delivers a single email and returns the provider message ID.
func (c *Client) SendEmail(ctx context.Context, to, subject, html, text string) (string, error) {
	data, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		return "", fmt.Errorf("resend: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/emails", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("resend: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resend: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("resend: send email HTTP %d: %s", resp.StatusCode, body)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("resend: decode response: %w", err)
	}
	return out.ID, nil
}

// SendOTP delivers a verification code email.
func (c *Client) SendOTP(ctx context.Context, to, code string) (string, error) {
	subject := "Your DECODE verification code"
	text := fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)
	html := fmt.Sprintf("<p>Your verification code is <strong>%s</strong>.</p><p>It expires in 10 minutes.</p>", code)
	return c.SendEmail(ctx, to, subject, html, text)
}
