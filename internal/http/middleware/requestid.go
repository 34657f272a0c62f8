package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/logger"
	"github.com/you/civicauth/internal/metrics"
	"go.uber.org/zap"
)

const (
	requestIDHeader  = "X-Request-ID"
	ContextRequestID = "request_id"
	contextLogger    = "logger"
)

// RequestID ensures each request has a stable request identifier and puts
// the client details on the request context for the audit trail.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)
		c.Set(ContextRequestID, reqID)

		ctx := domain.WithClientContext(c.Request.Context(), &domain.ClientContext{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			RequestID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// AccessLog logs every request and records its latency. The route template
// is used as the metric label to keep cardinality bounded.
func AccessLog(base *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	if base == nil {
		base = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		log := logger.WithRequestID(base, c.GetString(ContextRequestID))
		c.Set(contextLogger, log)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		m.ObserveRequest(c.Request.Method, route, status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Info("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}

// Logger returns the request scoped logger set by AccessLog.
func Logger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(contextLogger); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}
