package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/personainsights/server/internal/auth"
	"github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxProfileIDKey = "profileID"
	CtxEmailKey     = "profileEmail"
)

// Auth rejects requests without a valid bearer token and stashes the claims
// in the gin context for handlers.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Every validation failure collapses to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxProfileIDKey, claims.ProfileID)
		c.Set(CtxEmailKey, claims.Email)

		c.Next()
	}
}
