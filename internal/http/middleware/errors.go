package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// abort writes the error envelope shared with the handlers and stops the chain.
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

func abortRateLimited(c *gin.Context, retryAfter int64) {
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": gin.H{
		"code":        "RATE_LIMITED",
		"message":     "too many requests",
		"retry_after": retryAfter,
	}})
}
