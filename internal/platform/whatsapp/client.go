// Package whatsapp is a thin REST client for the WhatsApp Business (Graph)
// API, used to deliver phone verification codes as template messages.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody caps how much of an upstream error response is read back.
const maxErrorBody = 4096

// Client is the REST client for the WhatsApp Business API.
type Client struct {
	baseURL    string
	token      string
	phoneID    string
	template   string
	httpClient *http.Client
}

// NewClient creates a new WhatsApp client.
//
// baseURL is the Graph API root, e.g. "https://graph.facebook.com/v19.0".
// phoneID is the sending phone number ID; template names the pre-approved
// OTP message template.
func NewClient(baseURL, token, phoneID, template string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		phoneID:  phoneID,
		template: template,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type templateMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Template         template `json:"template"`
}

type template struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components"`
}

type language struct {
	Code string `json:"code"`
}

type component struct {
	Type       string      `json:"type"`
	SubType    string      `json:"sub_type,omitempty"`
	Index      string      `json:"index,omitempty"`
	Parameters []parameter `json:"parameters"`
}

type parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendOTP delivers a verification code to an E.164 phone number using the
// configured template. The code fills both the body parameter and the
// copy-code button. Returns the provider message ID.
func (c *Client) SendOTP(ctx context.Context, phone, code string) (string, error) {
	msg := templateMessage{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(phone, "+"),
		Type:             "template",
		Template: template{
			Name:     c.template,
			Language: language{Code: "en"},
			Components: []component{
				{
					Type:       "body",
					Parameters: []parameter{{Type: "text", Text: code}},
				},
				{
					Type:       "button",
					SubType:    "url",
					Index:      "0",
					Parameters: []parameter{{Type: "text", Text: code}},
				},
			},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("whatsapp: marshal message: %w", err)
	}

	url := c.baseURL + "/" + c.phoneID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("whatsapp: send otp HTTP %d: %s", resp.StatusCode, body)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whatsapp: decode response: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("whatsapp: send otp: empty messages in response")
	}
	return out.Messages[0].ID, nil
}
