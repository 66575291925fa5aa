package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	plandomain "github.com/stridehealth/stride/internal/plan/domain"
)

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (s *Server) AdminListPlans(c *gin.Context) {
	plans, err := s.planSvc.ListAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (s *Server) AdminCreatePlan(c *gin.Context) {
	var req plandomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.planSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (s *Server) AdminUpdatePlan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req plandomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = id

	plan, err := s.planSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}
