package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	redemptiondomain "github.com/stridehealth/stride/internal/redemption/domain"
	"github.com/stridehealth/stride/pkg/db/pagination"
)

func (s *Server) CreateRedemption(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	var req redemptiondomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = principal.UserID

	redemption, err := s.redemptionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, redemption)
}

func (s *Server) ListRedemptions(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	req, ok := bindRedemptionListRequest(c)
	if !ok {
		return
	}
	userID := principal.UserID
	req.UserID = &userID

	resp, err := s.redemptionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CancelRedemption(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	redemption, err := s.redemptionSvc.Cancel(c.Request.Context(), redemptiondomain.CancelRequest{
		ID:      id,
		ActorID: principal.UserID,
		Admin:   principal.IsAdmin(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, redemption)
}

func (s *Server) RedemptionCalculator(c *gin.Context) {
	coins, err := strconv.ParseInt(c.DefaultQuery("coins", "0"), 10, 64)
	if err != nil {
		AbortWithError(c, newValidationError("coins", "invalid_coins", "expected integer"))
		return
	}

	quote, err := s.redemptionSvc.Calculate(c.Request.Context(), coins)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) AdminListRedemptions(c *gin.Context) {
	req, ok := bindRedemptionListRequest(c)
	if !ok {
		return
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("user_id", "invalid_user_id", "expected snowflake id"))
			return
		}
		req.UserID = &userID
	}

	resp, err := s.redemptionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type reviewRedemptionRequest struct {
	Action         string   `json:"action"`
	CoinsApproved  *int64   `json:"coins_approved"`
	AmountApproved *float64 `json:"amount_approved"`
	Notes          string   `json:"notes"`
}

func (s *Server) AdminReviewRedemption(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req reviewRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var (
		redemption *redemptiondomain.CoinRedemption
		err        error
	)
	switch req.Action {
	case "approve":
		redemption, err = s.redemptionSvc.Approve(c.Request.Context(), redemptiondomain.ApproveRequest{
			ID:             id,
			AdminID:        principal.UserID,
			CoinsApproved:  req.CoinsApproved,
			AmountApproved: req.AmountApproved,
			Notes:          req.Notes,
		})
	case "reject":
		redemption, err = s.redemptionSvc.Reject(c.Request.Context(), redemptiondomain.ReviewRequest{
			ID:      id,
			AdminID: principal.UserID,
			Notes:   req.Notes,
		})
	default:
		AbortWithError(c, newValidationError("action", "invalid_action", "expected approve or reject"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, redemption)
}

func (s *Server) GetRedemptionHistory(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	redemption, err := s.redemptionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if redemption.UserID != principal.UserID && !principal.IsAdmin() {
		AbortWithError(c, redemptiondomain.ErrNotFound)
		return
	}

	rows, err := s.redemptionSvc.HistoryOf(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": rows})
}

func bindRedemptionListRequest(c *gin.Context) (redemptiondomain.ListRequest, bool) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return redemptiondomain.ListRequest{}, false
	}
	return redemptiondomain.ListRequest{
		Status:      redemptiondomain.RedemptionStatus(c.Query("status")),
		RequestType: c.Query("request_type"),
		Page:        page,
	}, true
}

func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil {
		AbortWithError(c, newValidationError(name, "invalid_id", "expected snowflake id"))
		return 0, false
	}
	return id, true
}
