package crossmint

import (
	"fmt"
	"net/http"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// APIOrderRequest is the body of a create-order call.
type APIOrderRequest struct {
	Payment   APIOrderPayment    `json:"payment"`
	LineItems []APIOrderLineItem `json:"lineItems"`
}

// APIOrderPayment selects the settlement currency and receiver.
type APIOrderPayment struct {
	Method           string `json:"method"`
	Currency         string `json:"currency"`
	ReceiptEmail     string `json:"receiptEmail,omitempty"`
	PayerAddress     string `json:"payerAddress,omitempty"`
	ReceiverAddress  string `json:"receiverAddress,omitempty"`
}

// APIOrderLineItem is one priced item in an order.
type APIOrderLineItem struct {
	ProductLocator string            `json:"productLocator,omitempty"`
	CallData       map[string]string `json:"callData,omitempty"`
	Price          string            `json:"price,omitempty"`
	Description    string            `json:"description,omitempty"`
}

// APIOrder is the subset of Crossmint's order object this server reads.
type APIOrder struct {
	OrderID      string          `json:"orderId"`
	Phase        string          `json:"phase"`
	ClientSecret string          `json:"clientSecret"`
	Payment      APIOrderStatus  `json:"payment"`
	Quote        APIOrderQuote   `json:"quote"`
}

// APIOrderStatus is the payment leg of an order.
type APIOrderStatus struct {
	Status   string `json:"status"`
	Currency string `json:"currency"`
	Failed   bool   `json:"failed"`
}

// APIOrderQuote is the priced quote of an order.
type APIOrderQuote struct {
	Status     string `json:"status"`
	TotalPrice string `json:"totalPrice"`
}

// APITransferRequest is the body of a wallet token transfer.
type APITransferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
}

// APITransfer is the subset of Crossmint's transfer response this server
// reads.
type APITransfer struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	TxHash string `json:"txHash"`
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
