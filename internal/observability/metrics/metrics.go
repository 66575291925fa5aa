// Package metrics exposes prometheus instruments for the coin and payment
// pipelines.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	coinsAwarded    prometheus.Counter
	ledgerMutations *prometheus.CounterVec
	paymentEvents   *prometheus.CounterVec
	webhookRejected prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stride_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stride_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		coinsAwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "stride_coins_awarded_total",
			Help: "Coins credited from step threshold crossings.",
		}),
		ledgerMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stride_ledger_mutations_total",
			Help: "Coin ledger mutations by operation.",
		}, []string{"operation"}),
		paymentEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stride_payment_events_total",
			Help: "Payment events by source and type.",
		}, []string{"source", "event_type"}),
		webhookRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "stride_webhook_signature_rejections_total",
			Help: "Webhook deliveries rejected for a bad signature.",
		}),
	}
}

func (m *Metrics) RecordCoinsAwarded(coins int64) {
	if m == nil || coins <= 0 {
		return
	}
	m.coinsAwarded.Add(float64(coins))
}

func (m *Metrics) RecordLedgerMutation(operation string) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordPaymentEvent(source, eventType string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(source, eventType).Inc()
}

func (m *Metrics) RecordWebhookRejected() {
	if m == nil {
		return
	}
	m.webhookRejected.Inc()
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
