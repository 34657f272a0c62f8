package services

import (
	"context"

	"github.com/you/civicauth/domain"
	"go.uber.org/zap"
)

// recordAudit hands event to sink with the caller's client context. A sink
// failure is logged and never reaches the caller.
func recordAudit(ctx context.Context, sink domain.AuditLogger, logger *zap.Logger, event *domain.AuditEvent) {
	if sink == nil {
		return
	}
	event.WithClientContext(domain.ClientContextFrom(ctx))
	if err := sink.LogEvent(ctx, event); err != nil {
		logger.Warn("audit event dropped",
			zap.String("event_type", string(event.EventType)),
			zap.Error(err),
		)
	}
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
