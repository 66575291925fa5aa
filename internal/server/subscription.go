package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/stridehealth/stride/internal/subscription/domain"
)

func (s *Server) GetSubscription(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	sub, err := s.subscriptionSvc.Active(c.Request.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"subscription": nil})
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (s *Server) GetSubscriptionHistory(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	subs, err := s.subscriptionSvc.History(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	sub, err := s.subscriptionSvc.Cancel(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}
