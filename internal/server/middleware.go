package server

import (
	"github.com/gin-gonic/gin"
	"github.com/stridehealth/stride/internal/auth"
	"github.com/stridehealth/stride/internal/observability/logger"
	"go.uber.org/zap"
)

// AuthRequired validates the bearer token and stores the principal on the
// request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.FromBearerHeader(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		principal, err := auth.ParseToken(raw, s.cfg.AuthJWTSecret)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// AdminRequired gates admin routes. Runs after AuthRequired.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.PrincipalFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !principal.IsAdmin() {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// StepReportRateLimit throttles step ingestion per user. Disabled limiter
// passes everything through.
func (s *Server) StepReportRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.stepLimiter.Enabled() {
			c.Next()
			return
		}

		principal, ok := auth.PrincipalFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		allowed, err := s.stepLimiter.Allow(c.Request.Context(), principal.UserID)
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("step report rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !allowed {
			c.Header("Retry-After", "1")
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func principalOrAbort(c *gin.Context) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
	}
	return principal, ok
}
