package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/civicauth/domain"
	"go.uber.org/zap"
)

// CasbinMW authorizes the role claim against the route policies
type CasbinMW struct {
	policies domain.PolicyService
	logger   *zap.Logger
}

// NewCasbinMW creates new casbin middleware wrapper
func NewCasbinMW(policies domain.PolicyService, logger *zap.Logger) *CasbinMW {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CasbinMW{policies: policies, logger: logger}
}

// Enforce returns the casbin authorization middleware. It must run after
// the JWT middleware.
func (mw *CasbinMW) Enforce() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		role := Role(c)
		if role == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "role not found in token")
			return
		}

		path := c.Request.URL.Path
		allowed, err := mw.policies.CheckPermission(role, path, c.Request.Method)
		if err != nil {
			mw.logger.Error("authorization check failed",
				zap.String("role", role), zap.String("path", path), zap.Error(err))
			abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "authorization check failed")
			return
		}
		if !allowed {
			abort(c, http.StatusForbidden, "FORBIDDEN", "access denied")
			return
		}

		c.Next()
	})
}
