package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

const principalKey = "principal"

// Authenticator resolves a bearer access token to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error)
}

// AuthMiddleware handles bearer token authentication.
type AuthMiddleware struct {
	authenticator Authenticator
	rateLimiter   *InvalidAuthRateLimiter
}

// NewAuthMiddleware constructs a new AuthMiddleware.
func NewAuthMiddleware(authenticator Authenticator, rateLimiter *InvalidAuthRateLimiter) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		rateLimiter:   rateLimiter,
	}
}

// Handle returns a Gin middleware function that enforces authentication.
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Extract Bearer token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			m.handleAuthError(c, utils.ErrTokenMalformed)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		// 2. Verify the token and load the user and admin record
		principal, err := m.authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			m.handleAuthError(c, err)
			return
		}

		// 3. Set context values
		c.Set(principalKey, principal)
		c.Next()
	}
}

func (m *AuthMiddleware) handleAuthError(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrUnavailable) {
		utils.HandleError(c, err)
		c.Abort()
		return
	}

	// Apply rate limit for invalid auth attempts
	if m.rateLimiter != nil {
		if limitErr := m.rateLimiter.Allow(c.Request.Context(), c.ClientIP()); limitErr != nil {
			utils.HandleError(c, limitErr)
			c.Abort()
			return
		}
	}

	if errors.Is(err, utils.ErrTokenMalformed) && c.GetHeader("Authorization") == "" {
		utils.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Missing or invalid authorization header")
		c.Abort()
		return
	}
	utils.HandleError(c, err)
	c.Abort()
}

// GetPrincipal returns the authenticated principal from context.
func GetPrincipal(c *gin.Context) *auth.Principal {
	p, _ := c.Get(principalKey)
	if p == nil {
		return nil
	}
	return p.(*auth.Principal)
}
