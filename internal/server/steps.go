package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	stepsdomain "github.com/stridehealth/stride/internal/steps/domain"
	"github.com/stridehealth/stride/pkg/db/pagination"
)

type reportStepsRequest struct {
	Steps    int64  `json:"steps"`
	Device   string `json:"device"`
	Platform string `json:"platform"`
	Source   string `json:"source"`
}

func (s *Server) ReportSteps(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	var req reportStepsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.stepsSvc.Report(c.Request.Context(), stepsdomain.ReportRequest{
		UserID:   principal.UserID,
		Steps:    req.Steps,
		Device:   req.Device,
		Platform: req.Platform,
		Source:   req.Source,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetStepsConfig(c *gin.Context) {
	cfg, err := s.stepsSvc.ActiveConfig(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) UpdateStepsConfig(c *gin.Context) {
	var req stepsdomain.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cfg, err := s.stepsSvc.UpdateConfig(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) GetStepsHistory(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := stepsdomain.HistoryRequest{
		UserID: principal.UserID,
		Page:   page,
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("from", "invalid_date", "expected RFC3339 timestamp"))
			return
		}
		req.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("to", "invalid_date", "expected RFC3339 timestamp"))
			return
		}
		req.To = &to
	}

	resp, err := s.stepsSvc.History(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetCoinBalance(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	account, err := s.ledgerSvc.Balance(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}
