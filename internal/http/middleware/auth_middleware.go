package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/you/civicauth/domain"
)

// AuthMiddleware creates authentication middleware. A token is accepted only
// while its auth session still exists, so logout revokes it immediately.
func AuthMiddleware(tokenSvc domain.TokenService, sessionRepo domain.SessionRepository) gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		// Get Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "authorization header required")
			return
		}

		// Check Bearer token format
		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format")
			return
		}

		claims, err := tokenSvc.ValidateAccessToken(strings.TrimSpace(tokenParts[1]))
		if err != nil {
			if errors.Is(err, domain.ErrTokenExpired) {
				abort(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired")
				return
			}
			abort(c, http.StatusUnauthorized, "TOKEN_INVALID", "invalid token")
			return
		}

		if claims.SessionID == "" {
			abort(c, http.StatusUnauthorized, "TOKEN_INVALID", "token has no session")
			return
		}
		session, err := sessionRepo.FindByID(c.Request.Context(), claims.SessionID)
		if err != nil || session == nil {
			abort(c, http.StatusUnauthorized, "SESSION_INVALID", "session invalid or expired")
			return
		}
		if session.UserID != claims.UserID {
			abort(c, http.StatusUnauthorized, "SESSION_INVALID", "session user mismatch")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextSessionID, claims.SessionID)

		c.Next()
	})
}
