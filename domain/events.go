package domain

import (
	"context"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// OTP flow events
	OTPRequestEvent         AuditEventType = "OTP_REQUESTED"
	OTPRateLimitedEvent     AuditEventType = "OTP_RATE_LIMITED"
	OTPDeliveryFailureEvent AuditEventType = "OTP_DELIVERY_FAILED"
	OTPVerifyEvent          AuditEventType = "OTP_VERIFIED"
	OTPVerifyFailureEvent   AuditEventType = "OTP_VERIFICATION_FAILED"
	MagicLinkResolvedEvent  AuditEventType = "MAGIC_LINK_RESOLVED"
	MagicLinkRejectedEvent  AuditEventType = "MAGIC_LINK_REJECTED"

	// Session events
	SessionIssuedEvent    AuditEventType = "SESSION_ISSUED"
	UserRegistrationEvent AuditEventType = "USER_REGISTERED"
	ProfileCompletedEvent AuditEventType = "PROFILE_COMPLETED"
	UserLogoutEvent       AuditEventType = "USER_LOGOUT"
)

// AuditEvent represents a business event that occurred in the system
type AuditEvent struct {
	EventType AuditEventType         `json:"event_type"`
	UserID    uint                   `json:"user_id,omitempty"`
	Phone     string                 `json:"phone,omitempty"`
	SID       string                 `json:"sid,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	ErrorMsg  string                 `json:"error_msg,omitempty"`
	Success   bool                   `json:"success"`
}

// AuditLogger records audit events. Implementations must not block the
// caller for long; a failing sink never fails the user operation.
type AuditLogger interface {
	LogEvent(ctx context.Context, event *AuditEvent) error
}

// ClientContext represents client information extracted from HTTP request
type ClientContext struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type clientContextKey struct{}

// WithClientContext stores client information on ctx.
func WithClientContext(ctx context.Context, cc *ClientContext) context.Context {
	return context.WithValue(ctx, clientContextKey{}, cc)
}

// ClientContextFrom returns the client information stored on ctx, if any.
func ClientContextFrom(ctx context.Context) *ClientContext {
	cc, _ := ctx.Value(clientContextKey{}).(*ClientContext)
	return cc
}

// NewAuditEvent creates a new audit event with common fields populated
func NewAuditEvent(eventType AuditEventType, userID uint) *AuditEvent {
	return &AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]interface{}),
		Success:   true,
	}
}

// WithError sets error information on the audit event
func (e *AuditEvent) WithError(err error) *AuditEvent {
	e.Success = false
	if err != nil {
		e.ErrorMsg = err.Error()
	}
	return e
}

// WithPhone sets the phone field, masked
func (e *AuditEvent) WithPhone(phone string) *AuditEvent {
	e.Phone = MaskPhone(phone)
	return e
}

// WithSID sets the otp session id
func (e *AuditEvent) WithSID(sid string) *AuditEvent {
	e.SID = sid
	return e
}

// WithClientContext sets client context information
func (e *AuditEvent) WithClientContext(ctx *ClientContext) *AuditEvent {
	if ctx != nil {
		e.IPAddress = ctx.IPAddress
		e.UserAgent = ctx.UserAgent
		if ctx.RequestID != "" {
			e.Metadata["request_id"] = ctx.RequestID
		}
	}
	return e
}

// WithMetadata adds metadata to the event
func (e *AuditEvent) WithMetadata(key string, value interface{}) *AuditEvent {
	e.Metadata[key] = value
	return e
}
