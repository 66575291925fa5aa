package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stridehealth/stride/internal/clock"
	"github.com/stridehealth/stride/internal/config"
	ledgerdomain "github.com/stridehealth/stride/internal/ledger/domain"
	ledgerrepository "github.com/stridehealth/stride/internal/ledger/repository"
	paymentdomain "github.com/stridehealth/stride/internal/payment/domain"
	"github.com/stridehealth/stride/internal/payment/gateway"
	plandomain "github.com/stridehealth/stride/internal/plan/domain"
	planservice "github.com/stridehealth/stride/internal/plan/service"
	subscriptiondomain "github.com/stridehealth/stride/internal/subscription/domain"
	subscriptionrepository "github.com/stridehealth/stride/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testKeySecret     = "test-key-secret"
	testWebhookSecret = "test-webhook-secret"
)

type gatewayStub struct {
	mu           sync.Mutex
	orderCalls   int
	payment      *gateway.Payment
	createErr    error
	fetchErr     error
	lastOrderAmt int64
}

func (g *gatewayStub) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.orderCalls++
	g.lastOrderAmt = amount
	return &gateway.Order{
		ID:       fmt.Sprintf("order_test_%d", g.orderCalls),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *gatewayStub) FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	payment := *g.payment
	payment.ID = paymentID
	return &payment, nil
}

func (g *gatewayStub) OrderCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.orderCalls
}

type paymentFixture struct {
	svc        paymentdomain.Service
	db         *gorm.DB
	node       *snowflake.Node
	ledgerRepo ledgerdomain.Repository
	planSvc    plandomain.Service
	gw         *gatewayStub
	fake       *clock.FakeClock
}

func setupPaymentService(t *testing.T) *paymentFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.UserCoinAccount{},
		&plandomain.SubscriptionPlan{},
		&subscriptiondomain.UserSubscription{},
		&paymentdomain.PaymentIntent{},
	))
	require.NoError(t, db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_user_subscriptions_active
		 ON user_subscriptions (user_id) WHERE status = 'active'`,
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ledgerRepo := ledgerrepository.Provide()

	planSvc := planservice.NewService(planservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})

	gw := &gatewayStub{}
	cfg := config.Config{
		Gateway: config.GatewayConfig{
			KeyID:         "rzp_test_key",
			KeySecret:     testKeySecret,
			WebhookSecret: testWebhookSecret,
		},
	}

	svc := NewService(Params{
		Config:     cfg,
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		Gateway:    gw,
		PlanSvc:    planSvc,
		LedgerRepo: ledgerRepo,
		SubRepo:    subscriptionrepository.Provide(),
	})
	return &paymentFixture{
		svc:        svc,
		db:         db,
		node:       node,
		ledgerRepo: ledgerRepo,
		planSvc:    planSvc,
		gw:         gw,
		fake:       fake,
	}
}

func (f *paymentFixture) createPlan(t *testing.T, price float64, ratio, percent float64) *plandomain.SubscriptionPlan {
	t.Helper()
	plan, err := f.planSvc.Create(context.Background(), plandomain.CreateRequest{
		Name:                     "Premium Monthly",
		Price:                    price,
		Currency:                 "INR",
		DurationDays:             30,
		CoinValueRatio:           ratio,
		MaxCoinRedemptionPercent: percent,
	})
	require.NoError(t, err)
	return plan
}

func (f *paymentFixture) fundUser(t *testing.T, coins int64) snowflake.ID {
	t.Helper()
	userID := f.node.Generate()
	_, err := f.ledgerRepo.GetOrCreate(context.Background(), f.db, userID, f.fake.Now())
	require.NoError(t, err)
	if coins > 0 {
		require.NoError(t, f.ledgerRepo.Credit(context.Background(), f.db, userID, coins))
	}
	return userID
}

func signPayment(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testKeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func capturedWebhookBody(t *testing.T, orderID, paymentID string, amount int64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": "payment.captured",
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":       paymentID,
					"order_id": orderID,
					"amount":   amount,
					"status":   "captured",
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func (f *paymentFixture) assertActivatedOnce(t *testing.T, userID snowflake.ID, coinsUsed int64) {
	t.Helper()

	var subs int64
	require.NoError(t, f.db.Model(&subscriptiondomain.UserSubscription{}).
		Where("user_id = ? AND status = ?", userID, subscriptiondomain.SubscriptionStatusActive).
		Count(&subs).Error)
	assert.EqualValues(t, 1, subs, "exactly one active subscription")

	account, err := f.ledgerRepo.Get(context.Background(), f.db, userID)
	require.NoError(t, err)
	assert.EqualValues(t, coinsUsed, account.RedeemedCoins, "exactly one coin debit")
}

func TestCreateOrderSnapshotsQuote(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 500, 1.5, 30)
	userID := f.fundUser(t, 200)

	resp, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID:         userID,
		PlanID:         plan.ID,
		RequestedCoins: 1000,
	})
	require.NoError(t, err)
	// floor(500*30/100/1.5) = 100 usable coins, 150 off.
	assert.EqualValues(t, 100, resp.CoinsUsed)
	assert.InDelta(t, 150, resp.CoinDiscount, 1e-9)
	assert.InDelta(t, 350, resp.Amount, 1e-9)
	assert.EqualValues(t, 35000, resp.AmountSubunits)
	assert.NotEmpty(t, resp.GatewayOrderID)
	assert.False(t, resp.Activated)

	intent, err := f.svc.Get(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.IntentStatusPending, intent.Status)
	assert.EqualValues(t, 100, intent.CoinsUsed)

	// No ledger mutation until the payment completes.
	account, err := f.ledgerRepo.Get(context.Background(), f.db, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 200, account.AvailableCoins)
}

func TestCreateOrderCoinsOnlyBypassesGateway(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 150, 1.5, 100)
	userID := f.fundUser(t, 100)

	resp, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID:         userID,
		PlanID:         plan.ID,
		RequestedCoins: 100,
	})
	require.NoError(t, err)
	assert.True(t, resp.Activated)
	assert.Empty(t, resp.GatewayOrderID)
	assert.Equal(t, "coins", resp.PaymentMethod)
	assert.Zero(t, f.gw.OrderCalls())

	f.assertActivatedOnce(t, userID, 100)

	intent, err := f.svc.Get(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.IntentStatusCompleted, intent.Status)
}

func TestCreateOrderRejectsActiveSubscriber(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 150, 1.5, 100)
	userID := f.fundUser(t, 100)

	_, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID:         userID,
		PlanID:         plan.ID,
		RequestedCoins: 100,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID: userID,
		PlanID: plan.ID,
	})
	require.ErrorIs(t, err, subscriptiondomain.ErrAlreadySubscribed)
}

func TestVerifyThenWebhookActivatesOnce(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 500, 1.5, 30)
	userID := f.fundUser(t, 200)

	resp, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID:         userID,
		PlanID:         plan.ID,
		RequestedCoins: 1000,
	})
	require.NoError(t, err)

	f.gw.payment = &gateway.Payment{
		OrderID: resp.GatewayOrderID,
		Amount:  resp.AmountSubunits,
		Status:  gateway.PaymentStatusCaptured,
	}

	intent, err := f.svc.Verify(context.Background(), paymentdomain.VerifyRequest{
		UserID:           userID,
		GatewayOrderID:   resp.GatewayOrderID,
		GatewayPaymentID: "pay_123",
		Signature:        signPayment(resp.GatewayOrderID, "pay_123"),
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.IntentStatusCompleted, intent.Status)

	// The webhook for the same payment arrives later; it must be a no-op.
	body := capturedWebhookBody(t, resp.GatewayOrderID, "pay_123", resp.AmountSubunits)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, signWebhook(body)))

	f.assertActivatedOnce(t, userID, 100)
}

func TestWebhookThenVerifyActivatesOnce(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 500, 1.5, 30)
	userID := f.fundUser(t, 200)

	resp, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID:         userID,
		PlanID:         plan.ID,
		RequestedCoins: 1000,
	})
	require.NoError(t, err)

	body := capturedWebhookBody(t, resp.GatewayOrderID, "pay_456", resp.AmountSubunits)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, signWebhook(body)))

	intent, err := f.svc.Get(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.IntentStatusCompleted, intent.Status)
	assert.Equal(t, "pay_456", intent.GatewayPaymentID)

	// Client verify arrives after the webhook already completed the intent.
	f.gw.payment = &gateway.Payment{
		OrderID: resp.GatewayOrderID,
		Amount:  resp.AmountSubunits,
		Status:  gateway.PaymentStatusCaptured,
	}
	_, err = f.svc.Verify(context.Background(), paymentdomain.VerifyRequest{
		UserID:           userID,
		GatewayOrderID:   resp.GatewayOrderID,
		GatewayPaymentID: "pay_456",
		Signature:        signPayment(resp.GatewayOrderID, "pay_456"),
	})
	require.NoError(t, err)

	f.assertActivatedOnce(t, userID, 100)
}

func TestConcurrentCompletionSignalsActivateOnce(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 500, 1.5, 30)
	userID := f.fundUser(t, 200)

	resp, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID:         userID,
		PlanID:         plan.ID,
		RequestedCoins: 1000,
	})
	require.NoError(t, err)

	f.gw.payment = &gateway.Payment{
		OrderID: resp.GatewayOrderID,
		Amount:  resp.AmountSubunits,
		Status:  gateway.PaymentStatusCaptured,
	}
	body := capturedWebhookBody(t, resp.GatewayOrderID, "pay_race", resp.AmountSubunits)

	// Both completion signals land at once; whichever loses the CAS must
	// treat the completed intent as a no-op, not an error.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.svc.Verify(context.Background(), paymentdomain.VerifyRequest{
			UserID:           userID,
			GatewayOrderID:   resp.GatewayOrderID,
			GatewayPaymentID: "pay_race",
			Signature:        signPayment(resp.GatewayOrderID, "pay_race"),
		})
		errs <- err
	}()
	go func() {
		defer wg.Done()
		errs <- f.svc.HandleWebhook(context.Background(), body, signWebhook(body))
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	intent, err := f.svc.Get(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.IntentStatusCompleted, intent.Status)
	f.assertActivatedOnce(t, userID, 100)
}

func TestWebhookBadSignatureMutatesNothing(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 500, 1.5, 30)
	userID := f.fundUser(t, 200)

	resp, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID:         userID,
		PlanID:         plan.ID,
		RequestedCoins: 1000,
	})
	require.NoError(t, err)

	body := capturedWebhookBody(t, resp.GatewayOrderID, "pay_789", resp.AmountSubunits)
	err = f.svc.HandleWebhook(context.Background(), body, "deadbeef")
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	intent, err := f.svc.Get(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.IntentStatusPending, intent.Status)

	var subs int64
	require.NoError(t, f.db.Model(&subscriptiondomain.UserSubscription{}).Count(&subs).Error)
	assert.Zero(t, subs)

	account, err := f.ledgerRepo.Get(context.Background(), f.db, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 200, account.AvailableCoins)
}

func TestVerifyBadSignatureRejected(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 500, 1.5, 30)
	userID := f.fundUser(t, 200)

	resp, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID: userID,
		PlanID: plan.ID,
	})
	require.NoError(t, err)

	_, err = f.svc.Verify(context.Background(), paymentdomain.VerifyRequest{
		UserID:           userID,
		GatewayOrderID:   resp.GatewayOrderID,
		GatewayPaymentID: "pay_123",
		Signature:        "deadbeef",
	})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestVerifyAmountMismatch(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 500, 1.5, 30)
	userID := f.fundUser(t, 200)

	resp, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID:         userID,
		PlanID:         plan.ID,
		RequestedCoins: 1000,
	})
	require.NoError(t, err)

	f.gw.payment = &gateway.Payment{
		OrderID: resp.GatewayOrderID,
		Amount:  resp.AmountSubunits - 100,
		Status:  gateway.PaymentStatusCaptured,
	}
	_, err = f.svc.Verify(context.Background(), paymentdomain.VerifyRequest{
		UserID:           userID,
		GatewayOrderID:   resp.GatewayOrderID,
		GatewayPaymentID: "pay_123",
		Signature:        signPayment(resp.GatewayOrderID, "pay_123"),
	})
	require.ErrorIs(t, err, paymentdomain.ErrAmountMismatch)

	intent, err := f.svc.Get(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.IntentStatusPending, intent.Status)
}

func TestWebhookFailedMarksIntent(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 500, 1.5, 30)
	userID := f.fundUser(t, 200)

	resp, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID: userID,
		PlanID: plan.ID,
	})
	require.NoError(t, err)

	body, err := json.Marshal(map[string]interface{}{
		"event": "payment.failed",
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":                "pay_999",
					"order_id":          resp.GatewayOrderID,
					"status":            "failed",
					"error_description": "card declined",
				},
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, signWebhook(body)))

	intent, err := f.svc.Get(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.IntentStatusFailed, intent.Status)
	assert.Equal(t, "card declined", intent.FailureReason)

	// Terminal: a late capture webhook cannot resurrect the intent.
	capture := capturedWebhookBody(t, resp.GatewayOrderID, "pay_999", resp.AmountSubunits)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), capture, signWebhook(capture)))
	intent, err = f.svc.Get(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.IntentStatusFailed, intent.Status)
}

func TestWebhookAuthorizedThenCaptured(t *testing.T) {
	f := setupPaymentService(t)
	plan := f.createPlan(t, 500, 1.5, 30)
	userID := f.fundUser(t, 200)

	resp, err := f.svc.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		UserID:         userID,
		PlanID:         plan.ID,
		RequestedCoins: 1000,
	})
	require.NoError(t, err)

	authorized, err := json.Marshal(map[string]interface{}{
		"event": "payment.authorized",
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":       "pay_111",
					"order_id": resp.GatewayOrderID,
					"status":   "authorized",
				},
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), authorized, signWebhook(authorized)))

	intent, err := f.svc.Get(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.IntentStatusAuthorized, intent.Status)

	capture := capturedWebhookBody(t, resp.GatewayOrderID, "pay_111", resp.AmountSubunits)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), capture, signWebhook(capture)))

	f.assertActivatedOnce(t, userID, 100)
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	f := setupPaymentService(t)

	body, err := json.Marshal(map[string]interface{}{"event": "refund.processed"})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, signWebhook(body)))
}

func TestWebhookMalformedBody(t *testing.T) {
	f := setupPaymentService(t)

	body := []byte("not-json")
	err := f.svc.HandleWebhook(context.Background(), body, signWebhook(body))
	require.ErrorIs(t, err, paymentdomain.ErrMalformedWebhook)
}
