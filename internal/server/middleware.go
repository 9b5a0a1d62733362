package server

import (
	"strings"

	"github.com/gin-gonic/gin"

	authdomain "github.com/classfund/classfund/internal/auth/domain"
	obscontext "github.com/classfund/classfund/internal/observability/context"
	"github.com/classfund/classfund/internal/usercontext"
)

// AuthRequired resolves the session cookie into a user and injects it into
// the request context. Requests without a valid session are rejected.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.resolveSessionUser(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		s.attachUser(c, user)
		c.Next()
	}
}

// OptionalAuth injects the user when a valid session cookie is present and
// lets anonymous requests through untouched.
func (s *Server) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.resolveSessionUser(c)
		if err == nil && user != nil {
			s.attachUser(c, user)
		}
		c.Next()
	}
}

// RequireRole rejects authenticated users whose role is not in the allow
// list. It must run after AuthRequired.
func (s *Server) RequireRole(roles ...authdomain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := usercontext.UserFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

// DonationRateLimit throttles donation creation per client IP.
func (s *Server) DonationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		result := s.limiter.AllowDonation(c.Request.Context(), c.ClientIP())
		if !result.Allowed {
			s.recordRateLimitDenied(c, "donation.create")
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		s.recordRateLimitAllowed(c, "donation.create")
		c.Next()
	}
}

// WebhookRateLimit throttles webhook ingestion per provider.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
		result := s.limiter.AllowWebhook(c.Request.Context(), provider)
		if !result.Allowed {
			s.recordRateLimitDenied(c, "payment.webhook")
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		s.recordRateLimitAllowed(c, "payment.webhook")
		c.Next()
	}
}

func (s *Server) resolveSessionUser(c *gin.Context) (*authdomain.User, error) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		return nil, ErrUnauthorized
	}

	session, err := s.authsvc.Authenticate(c.Request.Context(), token)
	if err != nil {
		return nil, err
	}

	user, err := s.authsvc.UserByID(c.Request.Context(), session.UserID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

func (s *Server) attachUser(c *gin.Context, user *authdomain.User) {
	ctx := usercontext.WithUser(c.Request.Context(), user)
	ctx = obscontext.WithActor(ctx, "user", user.ID.String())
	c.Request = c.Request.WithContext(ctx)
}

func (s *Server) recordRateLimitAllowed(c *gin.Context, endpoint string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), endpoint)
}

func (s *Server) recordRateLimitDenied(c *gin.Context, endpoint string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), endpoint, "rate_exceeded")
}
