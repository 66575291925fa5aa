package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stridehealth/stride/internal/config"
	"go.uber.org/zap"
)

// razorpayClient implements Gateway against the Razorpay v1 REST API using
// basic auth with the API key pair.
type razorpayClient struct {
	baseURL string
	keyID   string
	secret  string
	client  *http.Client
	log     *zap.Logger
}

func NewRazorpay(cfg config.Config, log *zap.Logger) Gateway {
	timeout := cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &razorpayClient{
		baseURL: strings.TrimRight(cfg.Gateway.BaseURL, "/"),
		keyID:   cfg.Gateway.KeyID,
		secret:  cfg.Gateway.KeySecret,
		client:  &http.Client{Timeout: timeout},
		log:     log.Named("payment.gateway"),
	}
}

func (c *razorpayClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return nil, err
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *razorpayClient) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var payment Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *razorpayClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("gateway request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("gateway returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw),
		)
		return fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return nil
}
