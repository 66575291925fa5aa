// Package gateway talks to the payment gateway's REST API and holds the
// signature primitives used to authenticate callbacks from it.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
)

var ErrGateway = errors.New("payment_gateway_error")

// Payment status values reported by the gateway.
const (
	PaymentStatusCreated    = "created"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusFailed     = "failed"
)

// Order is a gateway order created ahead of checkout. Amount is in the
// currency's smallest unit.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Payment is the gateway's record of one payment attempt.
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// ToSmallestUnit converts a major-unit amount to the gateway's integer
// smallest unit (paise for INR, cents for USD).
func ToSmallestUnit(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// VerifyPaymentSignature checks the checkout callback signature, an
// HMAC-SHA256 of "orderID|paymentID" under the API key secret.
func VerifyPaymentSignature(orderID, paymentID, signature, secret string) bool {
	return verifyHMAC([]byte(orderID+"|"+paymentID), signature, secret)
}

// VerifyWebhookSignature checks the webhook signature, an HMAC-SHA256 of the
// raw request body under the webhook secret.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	return verifyHMAC(body, signature, secret)
}

func verifyHMAC(message []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
