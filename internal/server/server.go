package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stridehealth/stride/internal/config"
	ledgerdomain "github.com/stridehealth/stride/internal/ledger/domain"
	obsmiddleware "github.com/stridehealth/stride/internal/observability/logger"
	obsmetrics "github.com/stridehealth/stride/internal/observability/metrics"
	obstracing "github.com/stridehealth/stride/internal/observability/tracing"
	paymentdomain "github.com/stridehealth/stride/internal/payment/domain"
	plandomain "github.com/stridehealth/stride/internal/plan/domain"
	"github.com/stridehealth/stride/internal/ratelimit"
	redemptiondomain "github.com/stridehealth/stride/internal/redemption/domain"
	stepsdomain "github.com/stridehealth/stride/internal/steps/domain"
	subscriptiondomain "github.com/stridehealth/stride/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(
		NewEngine,
		ratelimit.NewStepReportLimiter,
		NewServer,
	),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, m *obsmetrics.Metrics, reg *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	ledgerSvc       ledgerdomain.Service
	stepsSvc        stepsdomain.Service
	redemptionSvc   redemptiondomain.Service
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	stepLimiter     *ratelimit.StepReportLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	LedgerSvc       ledgerdomain.Service
	StepsSvc        stepsdomain.Service
	RedemptionSvc   redemptiondomain.Service
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	StepLimiter     *ratelimit.StepReportLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		ledgerSvc:       p.LedgerSvc,
		stepsSvc:        p.StepsSvc,
		redemptionSvc:   p.RedemptionSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		stepLimiter:     p.StepLimiter,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
	s.RegisterAdminRoutes()
	s.RegisterWebhookRoutes()
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/v1", s.AuthRequired())

	// -------- Steps --------
	api.POST("/steps/report", s.StepReportRateLimit(), s.ReportSteps)
	api.GET("/steps/config", s.GetStepsConfig)
	api.GET("/steps/history", s.GetStepsHistory)
	api.GET("/coins/balance", s.GetCoinBalance)

	// -------- Redemptions --------
	api.POST("/redemptions", s.CreateRedemption)
	api.GET("/redemptions", s.ListRedemptions)
	api.DELETE("/redemptions/:id", s.CancelRedemption)
	api.GET("/redemptions/:id/history", s.GetRedemptionHistory)
	api.GET("/redemptions/calculator", s.RedemptionCalculator)

	// -------- Plans & Subscription --------
	api.GET("/plans", s.ListPlans)
	api.GET("/subscription", s.GetSubscription)
	api.GET("/subscription/history", s.GetSubscriptionHistory)
	api.DELETE("/subscription", s.CancelSubscription)

	// -------- Payments --------
	api.POST("/payments/orders", s.CreatePaymentOrder)
	api.POST("/payments/verify", s.VerifyPayment)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/api/v1/admin", s.AuthRequired(), s.AdminRequired())

	admin.GET("/redemptions", s.AdminListRedemptions)
	admin.PUT("/redemptions/:id", s.AdminReviewRedemption)

	admin.GET("/steps-config", s.GetStepsConfig)
	admin.POST("/steps-config", s.UpdateStepsConfig)
	admin.PUT("/steps-config", s.UpdateStepsConfig)

	admin.GET("/plans", s.AdminListPlans)
	admin.POST("/plans", s.AdminCreatePlan)
	admin.PUT("/plans/:id", s.AdminUpdatePlan)
}

func (s *Server) RegisterWebhookRoutes() {
	s.engine.POST("/webhooks/razorpay", s.RazorpayWebhook)
}
