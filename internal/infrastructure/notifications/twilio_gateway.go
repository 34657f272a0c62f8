package notifications

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/you/civicauth/domain"
	"go.uber.org/zap"
)

// Supported Twilio channels.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

// messageCreator is the slice of the Twilio API the gateway uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioGateway implements domain.DeliveryGateway over Twilio Programmable
// Messaging. WhatsApp addresses are prefixed with "whatsapp:".
type TwilioGateway struct {
	api        messageCreator
	fromNumber string
	channel    string
	logger     *zap.Logger
}

// NewTwilioGateway creates a new Twilio delivery gateway
func NewTwilioGateway(accountSID, authToken, fromNumber, channel string, logger *zap.Logger) *TwilioGateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioGateway(client.Api, fromNumber, channel, logger)
}

func newTwilioGateway(api messageCreator, fromNumber, channel string, logger *zap.Logger) *TwilioGateway {
	if channel != ChannelSMS {
		channel = ChannelWhatsApp
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TwilioGateway{
		api:        api,
		fromNumber: fromNumber,
		channel:    channel,
		logger:     logger,
	}
}

// Channel implements domain.DeliveryGateway
func (t *TwilioGateway) Channel() string { return t.channel }

func (t *TwilioGateway) address(number string) string {
	if t.channel == ChannelWhatsApp {
		return "whatsapp:" + number
	}
	return number
}

// Send implements domain.DeliveryGateway. Failures wrap
// domain.ErrDeliveryFailed and are never retried here.
func (t *TwilioGateway) Send(ctx context.Context, d *domain.OTPDelivery) error {
	if err := ctx.Err(); err != nil {
		return domain.ErrDeliveryFailed.WithCause(err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(t.address(domain.E164(d.Phone)))
	params.SetFrom(t.address(t.fromNumber))
	params.SetBody(FormatMessage(d))

	msg, err := t.api.CreateMessage(params)
	if err != nil {
		t.logger.Warn("twilio delivery failed",
			zap.String("channel", t.channel),
			zap.String("phone", domain.MaskPhone(d.Phone)),
			zap.Error(err))
		return domain.ErrDeliveryFailed.WithCause(fmt.Errorf("twilio %s: %w", t.channel, err))
	}

	fields := []zap.Field{
		zap.String("channel", t.channel),
		zap.String("phone", domain.MaskPhone(d.Phone)),
	}
	if msg != nil && msg.Sid != nil {
		fields = append(fields, zap.String("message_sid", *msg.Sid))
	}
	t.logger.Debug("otp delivered", fields...)
	return nil
}
