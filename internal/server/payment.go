package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/stridehealth/stride/internal/payment/domain"
)

type createPaymentOrderRequest struct {
	PlanID     snowflake.ID `json:"plan_id"`
	UseCoins   bool         `json:"use_coins"`
	CoinsToUse int64        `json:"coins_to_use"`
}

func (s *Server) CreatePaymentOrder(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	var body createPaymentOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if body.CoinsToUse < 0 {
		AbortWithError(c, newValidationError("coins_to_use", "invalid_coins_to_use", "must be zero or positive"))
		return
	}

	req := paymentdomain.CreateOrderRequest{
		UserID: principal.UserID,
		PlanID: body.PlanID,
	}
	if body.UseCoins {
		req.RequestedCoins = body.CoinsToUse
	}

	resp, err := s.paymentSvc.CreateOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) VerifyPayment(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	var req paymentdomain.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = principal.UserID

	intent, err := s.paymentSvc.Verify(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}
