package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrIntentNotFound   = errors.New("payment_intent_not_found")
	ErrInvalidSignature = errors.New("invalid_payment_signature")
	ErrAmountMismatch   = errors.New("payment_amount_mismatch")
	ErrStateConflict    = errors.New("payment_state_conflict")
	ErrNotCaptured      = errors.New("payment_not_captured")
	ErrInvalidOrder     = errors.New("invalid_payment_order")
	ErrMalformedWebhook = errors.New("malformed_webhook_payload")
)

type CreateOrderRequest struct {
	UserID         snowflake.ID `json:"-"`
	PlanID         snowflake.ID `json:"plan_id"`
	RequestedCoins int64        `json:"requested_coins"`
}

// CreateOrderResponse is returned to the mobile client. When the plan was
// fully funded by coins there is no gateway order and Activated is true.
type CreateOrderResponse struct {
	IntentID       snowflake.ID `json:"intent_id"`
	GatewayOrderID string       `json:"gateway_order_id,omitempty"`
	GatewayKeyID   string       `json:"gateway_key_id,omitempty"`
	Amount         float64      `json:"amount"`
	AmountSubunits int64        `json:"amount_subunits"`
	Currency       string       `json:"currency"`
	CoinsUsed      int64        `json:"coins_used"`
	CoinDiscount   float64      `json:"coin_discount"`
	PaymentMethod  string       `json:"payment_method"`
	Activated      bool         `json:"activated"`
}

type VerifyRequest struct {
	UserID           snowflake.ID `json:"-"`
	GatewayOrderID   string       `json:"gateway_order_id"`
	GatewayPaymentID string       `json:"gateway_payment_id"`
	Signature        string       `json:"signature"`
}

type Service interface {
	// CreateOrder prices the purchase, rejects when an active subscription
	// exists and persists a pending intent. A zero final price activates
	// immediately without the gateway.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error)
	// Verify authenticates the client callback signature, confirms capture
	// and amount with the gateway and completes the intent.
	Verify(ctx context.Context, req VerifyRequest) (*PaymentIntent, error)
	// HandleWebhook authenticates and dispatches one raw webhook delivery.
	// Signature and payload errors are returned; per-event processing
	// failures are logged and swallowed so the gateway does not retry
	// forever.
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	Get(ctx context.Context, id snowflake.ID) (*PaymentIntent, error)
}
