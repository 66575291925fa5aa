package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const webhookSignatureHeader = "X-Razorpay-Signature"

// maxWebhookBody bounds webhook payloads to 1 MiB.
const maxWebhookBody = 1 << 20

// RazorpayWebhook ingests gateway deliveries. The signature covers the raw
// body, so the body must be read before any JSON parsing.
func (s *Server) RazorpayWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// Only authentication and payload errors surface here; event-level
	// failures are logged inside the service and acked.
	if err := s.paymentSvc.HandleWebhook(c.Request.Context(), body, c.GetHeader(webhookSignatureHeader)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
