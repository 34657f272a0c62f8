package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/http/middleware"
	"go.uber.org/zap"
)

// errorBody is the envelope of every failed response.
type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after,omitempty"`
	SID        string `json:"sid,omitempty"`
}

// statusFor maps an AuthError to its HTTP status.
func statusFor(ae *domain.AuthError) int {
	switch ae.Kind {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	case domain.KindSessionState:
		if ae.Code == domain.CodeOTPInvalid {
			return http.StatusBadRequest
		}
		return http.StatusGone
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindDelivery:
		return http.StatusBadGateway
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err in the error envelope. Unknown errors are logged
// and reported as a generic 500.
func respondError(c *gin.Context, err error) {
	if ae, ok := domain.AsAuthError(err); ok {
		status := statusFor(ae)
		if status == http.StatusTooManyRequests && ae.RetryAfter > 0 {
			c.Header("Retry-After", strconv.FormatInt(ae.RetryAfter, 10))
		}
		c.JSON(status, gin.H{"error": errorBody{
			Code:       ae.Code,
			Message:    ae.Message,
			RetryAfter: ae.RetryAfter,
			SID:        ae.SID,
		}})
		return
	}

	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		writeError(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "token has expired")
	case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrTokenMalformed):
		writeError(c, http.StatusUnauthorized, "TOKEN_INVALID", "invalid token")
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSessionExpired):
		writeError(c, http.StatusUnauthorized, "SESSION_INVALID", "session invalid or expired")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	case errors.Is(err, domain.ErrInsufficientRole):
		writeError(c, http.StatusForbidden, "FORBIDDEN", "access denied")
	case errors.Is(err, domain.ErrUserInactive):
		writeError(c, http.StatusForbidden, "USER_INACTIVE", "account is inactive")
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(c, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
	default:
		middleware.Logger(c).Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": errorBody{Code: code, Message: message}})
}

// bindError reports a malformed request body.
func bindError(c *gin.Context, err error) {
	writeError(c, http.StatusUnprocessableEntity, domain.CodeValidation, err.Error())
}
