package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stridehealth/stride/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func hexHMAC(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestToSmallestUnit(t *testing.T) {
	assert.EqualValues(t, 35000, ToSmallestUnit(350))
	assert.EqualValues(t, 49999, ToSmallestUnit(499.99))
	assert.EqualValues(t, 10, ToSmallestUnit(0.1))
	assert.EqualValues(t, 0, ToSmallestUnit(0))
	// Float representation of 0.29*100 is 28.999...; rounding keeps it exact.
	assert.EqualValues(t, 29, ToSmallestUnit(0.29))
}

func TestVerifyPaymentSignature(t *testing.T) {
	sig := hexHMAC("order_1|pay_1", "secret")

	assert.True(t, VerifyPaymentSignature("order_1", "pay_1", sig, "secret"))
	assert.False(t, VerifyPaymentSignature("order_1", "pay_2", sig, "secret"))
	assert.False(t, VerifyPaymentSignature("order_1", "pay_1", sig, "other"))
	assert.False(t, VerifyPaymentSignature("order_1", "pay_1", "", "secret"))
	assert.False(t, VerifyPaymentSignature("order_1", "pay_1", sig, ""))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := hexHMAC(string(body), "whsecret")

	assert.True(t, VerifyWebhookSignature(body, sig, "whsecret"))
	assert.False(t, VerifyWebhookSignature([]byte(`{"event":"tampered"}`), sig, "whsecret"))
	assert.False(t, VerifyWebhookSignature(body, "deadbeef", "whsecret"))
}

func newTestClient(t *testing.T, handler http.Handler) Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewRazorpay(config.Config{
		Gateway: config.GatewayConfig{
			BaseURL:   srv.URL,
			KeyID:     "rzp_test_key",
			KeySecret: "rzp_test_secret",
		},
	}, zap.NewNop())
}

func TestRazorpayCreateOrder(t *testing.T) {
	gw := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 35000, body["amount"])
		assert.Equal(t, "INR", body["currency"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "order_abc",
			"amount":   35000,
			"currency": "INR",
			"receipt":  body["receipt"],
			"status":   "created",
		})
	}))

	order, err := gw.CreateOrder(context.Background(), 35000, "INR", "intent-1")
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.EqualValues(t, 35000, order.Amount)
	assert.Equal(t, "intent-1", order.Receipt)
}

func TestRazorpayFetchPayment(t *testing.T) {
	gw := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_xyz", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "pay_xyz",
			"order_id": "order_abc",
			"amount":   35000,
			"status":   "captured",
		})
	}))

	payment, err := gw.FetchPayment(context.Background(), "pay_xyz")
	require.NoError(t, err)
	assert.Equal(t, "order_abc", payment.OrderID)
	assert.Equal(t, PaymentStatusCaptured, payment.Status)
}

func TestRazorpayErrorStatus(t *testing.T) {
	gw := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"description":"upstream down"}}`))
	}))

	_, err := gw.CreateOrder(context.Background(), 100, "INR", "intent-2")
	require.ErrorIs(t, err, ErrGateway)
}
