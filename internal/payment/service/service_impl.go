package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/stridehealth/stride/internal/clock"
	"github.com/stridehealth/stride/internal/config"
	ledgerdomain "github.com/stridehealth/stride/internal/ledger/domain"
	obsmetrics "github.com/stridehealth/stride/internal/observability/metrics"
	paymentdomain "github.com/stridehealth/stride/internal/payment/domain"
	"github.com/stridehealth/stride/internal/payment/gateway"
	plandomain "github.com/stridehealth/stride/internal/plan/domain"
	"github.com/stridehealth/stride/internal/pricing"
	subscriptiondomain "github.com/stridehealth/stride/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config     config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Gateway    gateway.Gateway
	PlanSvc    plandomain.Service
	LedgerRepo ledgerdomain.Repository
	SubRepo    subscriptiondomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	gateway    gateway.Gateway
	planSvc    plandomain.Service
	ledgerRepo ledgerdomain.Repository
	subRepo    subscriptiondomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		cfg:        p.Config,
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		gateway:    p.Gateway,
		planSvc:    p.PlanSvc,
		ledgerRepo: p.LedgerRepo,
		subRepo:    p.SubRepo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req paymentdomain.CreateOrderRequest) (*paymentdomain.CreateOrderResponse, error) {
	plan, err := s.planSvc.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, plandomain.ErrPlanNotFound
	}

	// Fast rejection; the partial unique index is the real guard at
	// activation time.
	if _, err := s.subRepo.ActiveByUser(ctx, s.db, req.UserID); err == nil {
		return nil, subscriptiondomain.ErrAlreadySubscribed
	} else if !errors.Is(err, subscriptiondomain.ErrNotFound) {
		return nil, err
	}

	account, err := s.ledgerRepo.GetOrCreate(ctx, s.db, req.UserID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	quote, err := pricing.Price(plan, req.RequestedCoins, account.AvailableCoins)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	intent := paymentdomain.PaymentIntent{
		ID:            s.genID.Generate(),
		UserID:        req.UserID,
		PlanID:        plan.ID,
		Amount:        quote.FinalPrice,
		Currency:      plan.Currency,
		Status:        paymentdomain.IntentStatusPending,
		CoinsUsed:     quote.CoinsUsed,
		CoinDiscount:  quote.CoinDiscount,
		PaymentMethod: quote.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	resp := paymentdomain.CreateOrderResponse{
		IntentID:       intent.ID,
		Amount:         quote.FinalPrice,
		AmountSubunits: gateway.ToSmallestUnit(quote.FinalPrice),
		Currency:       plan.Currency,
		CoinsUsed:      quote.CoinsUsed,
		CoinDiscount:   quote.CoinDiscount,
		PaymentMethod:  quote.PaymentMethod,
	}

	// A fully coin-funded purchase never touches the gateway.
	if quote.FinalPrice == 0 {
		if err := s.db.WithContext(ctx).Create(&intent).Error; err != nil {
			return nil, err
		}
		if err := s.activate(ctx, intent.ID, ""); err != nil {
			return nil, err
		}
		resp.Activated = true
		return &resp, nil
	}

	order, err := s.gateway.CreateOrder(ctx, resp.AmountSubunits, plan.Currency, intent.ID.String())
	if err != nil {
		return nil, err
	}
	intent.GatewayOrderID = order.ID

	if err := s.db.WithContext(ctx).Create(&intent).Error; err != nil {
		return nil, err
	}
	s.recordEvent("api", "order_created")
	s.log.Info("payment order created",
		zap.String("intent_id", intent.ID.String()),
		zap.String("gateway_order_id", order.ID),
		zap.Float64("amount", quote.FinalPrice),
		zap.Int64("coins_used", quote.CoinsUsed),
	)

	resp.GatewayOrderID = order.ID
	resp.GatewayKeyID = s.cfg.Gateway.KeyID
	return &resp, nil
}

func (s *Service) Verify(ctx context.Context, req paymentdomain.VerifyRequest) (*paymentdomain.PaymentIntent, error) {
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" {
		return nil, paymentdomain.ErrInvalidOrder
	}
	if !gateway.VerifyPaymentSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature, s.cfg.Gateway.KeySecret) {
		s.recordEvent("verify", "bad_signature")
		return nil, paymentdomain.ErrInvalidSignature
	}

	intent, err := s.byGatewayOrder(ctx, req.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	if intent.UserID != req.UserID {
		return nil, paymentdomain.ErrIntentNotFound
	}

	payment, err := s.gateway.FetchPayment(ctx, req.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if payment.OrderID != intent.GatewayOrderID {
		return nil, paymentdomain.ErrInvalidOrder
	}
	switch payment.Status {
	case gateway.PaymentStatusCaptured:
	case gateway.PaymentStatusFailed:
		if err := s.markFailed(ctx, intent.ID, "gateway reported failure"); err != nil {
			return nil, err
		}
		return nil, paymentdomain.ErrNotCaptured
	default:
		return nil, paymentdomain.ErrNotCaptured
	}
	if payment.Amount != gateway.ToSmallestUnit(intent.Amount) {
		s.recordEvent("verify", "amount_mismatch")
		return nil, paymentdomain.ErrAmountMismatch
	}

	if err := s.activate(ctx, intent.ID, payment.ID); err != nil {
		return nil, err
	}
	s.recordEvent("verify", "completed")
	return s.Get(ctx, intent.ID)
}

// webhookEvent is the gateway's delivery envelope. Only the fields the
// dispatcher reads are declared.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Amount           int64  `json:"amount"`
				Status           string `json:"status"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !gateway.VerifyWebhookSignature(body, signature, s.cfg.Gateway.WebhookSecret) {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordWebhookRejected()
		}
		return paymentdomain.ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Event == "" {
		return paymentdomain.ErrMalformedWebhook
	}

	orderID := event.Payload.Payment.Entity.OrderID
	if orderID == "" {
		orderID = event.Payload.Order.Entity.ID
	}
	paymentID := event.Payload.Payment.Entity.ID

	var err error
	switch event.Event {
	case "payment.captured", "order.paid":
		err = s.completeFromWebhook(ctx, orderID, paymentID, event.Payload.Payment.Entity.Amount)
	case "payment.authorized":
		err = s.authorizeFromWebhook(ctx, orderID, paymentID)
	case "payment.failed":
		err = s.failFromWebhook(ctx, orderID, event.Payload.Payment.Entity.ErrorDescription)
	default:
		s.log.Debug("ignoring webhook event", zap.String("event", event.Event))
		return nil
	}
	if err != nil {
		// Ack anyway: the delivery was authentic and retrying the same
		// payload will not change the outcome.
		s.log.Warn("webhook event processing failed",
			zap.String("event", event.Event),
			zap.String("gateway_order_id", orderID),
			zap.Error(err),
		)
	}
	s.recordEvent("webhook", event.Event)
	return nil
}

func (s *Service) completeFromWebhook(ctx context.Context, orderID, paymentID string, amount int64) error {
	if orderID == "" {
		return paymentdomain.ErrMalformedWebhook
	}
	intent, err := s.byGatewayOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if amount > 0 && amount != gateway.ToSmallestUnit(intent.Amount) {
		return paymentdomain.ErrAmountMismatch
	}
	return s.activate(ctx, intent.ID, paymentID)
}

func (s *Service) authorizeFromWebhook(ctx context.Context, orderID, paymentID string) error {
	if orderID == "" {
		return paymentdomain.ErrMalformedWebhook
	}
	result := s.db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, gateway_payment_id = ?, updated_at = ?
		 WHERE gateway_order_id = ? AND status = ?`,
		paymentdomain.IntentStatusAuthorized, paymentID, s.clock.Now(),
		orderID, paymentdomain.IntentStatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	// Zero rows: the intent already moved past pending. Authorization is
	// old news at that point.
	return nil
}

func (s *Service) failFromWebhook(ctx context.Context, orderID, reason string) error {
	if orderID == "" {
		return paymentdomain.ErrMalformedWebhook
	}
	intent, err := s.byGatewayOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "gateway reported failure"
	}
	return s.markFailed(ctx, intent.ID, reason)
}

// activate moves an intent to completed exactly once, then creates the
// subscription and debits the snapshotted coins in the same transaction.
// Both the client verify path and the webhook path funnel through here; a
// compare-and-swap on status makes the second arrival a no-op.
func (s *Service) activate(ctx context.Context, intentID snowflake.ID, gatewayPaymentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		result := tx.Exec(
			`UPDATE payment_intents
			 SET status = ?, gateway_payment_id = CASE WHEN ? = '' THEN gateway_payment_id ELSE ? END,
			     completed_at = ?, updated_at = ?
			 WHERE id = ? AND status IN (?, ?)`,
			paymentdomain.IntentStatusCompleted, gatewayPaymentID, gatewayPaymentID,
			now, now,
			intentID, paymentdomain.IntentStatusPending, paymentdomain.IntentStatusAuthorized,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var intent paymentdomain.PaymentIntent
			if err := tx.Where("id = ?", intentID).First(&intent).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return paymentdomain.ErrIntentNotFound
				}
				return err
			}
			if intent.Status == paymentdomain.IntentStatusCompleted {
				// The other completion signal won the race.
				return nil
			}
			return paymentdomain.ErrStateConflict
		}

		var intent paymentdomain.PaymentIntent
		if err := tx.Where("id = ?", intentID).First(&intent).Error; err != nil {
			return err
		}

		// Read the plan through tx: the transaction holds a pool connection,
		// and going back to the pool here can wait on ourselves.
		var plan plandomain.SubscriptionPlan
		if err := tx.Where("id = ?", intent.PlanID).First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return plandomain.ErrPlanNotFound
			}
			return err
		}

		sub := subscriptiondomain.UserSubscription{
			ID:              s.genID.Generate(),
			UserID:          intent.UserID,
			PlanID:          intent.PlanID,
			PaymentIntentID: &intent.ID,
			PaymentStatus:   string(paymentdomain.IntentStatusCompleted),
			StartDate:       now,
			EndDate:         now.AddDate(0, 0, plan.DurationDays),
			CoinsUsed:       intent.CoinsUsed,
			CoinDiscount:    intent.CoinDiscount,
			FinalPrice:      intent.Amount,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.subRepo.CreateActive(ctx, tx, &sub); err != nil {
			return err
		}

		if intent.CoinsUsed > 0 {
			if err := s.ledgerRepo.Debit(ctx, tx, intent.UserID, intent.CoinsUsed); err != nil {
				return err
			}
		}

		s.log.Info("payment intent completed",
			zap.String("intent_id", intentID.String()),
			zap.String("user_id", intent.UserID.String()),
			zap.String("subscription_id", sub.ID.String()),
			zap.Int64("coins_used", intent.CoinsUsed),
		)
		return nil
	})
}

func (s *Service) markFailed(ctx context.Context, intentID snowflake.ID, reason string) error {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE payment_intents
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		paymentdomain.IntentStatusFailed, reason, s.clock.Now(),
		intentID, paymentdomain.IntentStatusPending, paymentdomain.IntentStatusAuthorized,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.recordEvent("reconcile", "intent_failed")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*paymentdomain.PaymentIntent, error) {
	var intent paymentdomain.PaymentIntent
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentdomain.ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

func (s *Service) byGatewayOrder(ctx context.Context, orderID string) (*paymentdomain.PaymentIntent, error) {
	var intent paymentdomain.PaymentIntent
	err := s.db.WithContext(ctx).Where("gateway_order_id = ?", orderID).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentdomain.ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

func (s *Service) recordEvent(source, event string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(source, event)
	}
}
