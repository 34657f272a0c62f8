package notifications

import (
	"context"

	"github.com/you/civicauth/domain"
	"go.uber.org/zap"
)

// LogGateway implements domain.DeliveryGateway by writing the message to the
// log. It is meant for local development only.
type LogGateway struct {
	logger *zap.Logger
}

// NewLogGateway creates a gateway that logs deliveries
func NewLogGateway(logger *zap.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

// Channel implements domain.DeliveryGateway
func (g *LogGateway) Channel() string { return "log" }

// Send implements domain.DeliveryGateway
func (g *LogGateway) Send(ctx context.Context, d *domain.OTPDelivery) error {
	g.logger.Info("otp delivery (log channel)",
		zap.String("phone", domain.MaskPhone(d.Phone)),
		zap.String("code", d.Code),
		zap.String("magic_link", d.MagicLink),
		zap.Int64("expires_in", d.ExpiresIn))
	return nil
}
