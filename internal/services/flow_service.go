package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Profile name bounds, in runes after normalization.
const (
	minNameLength = 2
	maxNameLength = 120
)

// FlowConfig holds the flow settings that are not owned by the store.
// Code length and attempt budget come from the store's Policy.
type FlowConfig struct {
	MagicLinkBaseURL string
}

// FlowService implements domain.OTPFlow. It holds no session state of its
// own; everything a client needs to resume lives behind the sid.
type FlowService struct {
	store   domain.OTPSessionStore
	gateway domain.DeliveryGateway
	issuer  domain.SessionIssuer
	users   domain.UserRepository
	audit   domain.AuditLogger
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     FlowConfig
	policy  domain.OTPPolicy
	now     func() time.Time
}

// NewFlowService creates the OTP flow controller
func NewFlowService(
	store domain.OTPSessionStore,
	gateway domain.DeliveryGateway,
	issuer domain.SessionIssuer,
	users domain.UserRepository,
	audit domain.AuditLogger,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg FlowConfig,
) *FlowService {
	return &FlowService{
		store:   store,
		gateway: gateway,
		issuer:  issuer,
		users:   users,
		audit:   audit,
		metrics: m,
		logger:  orNop(logger).Named("flow"),
		cfg:     cfg,
		policy:  store.Policy(),
		now:     time.Now,
	}
}

// RequestOTP implements domain.OTPFlow
func (s *FlowService) RequestOTP(ctx context.Context, rawPhone string) (*domain.OTPChallenge, error) {
	phone, err := domain.NormalizePhone(rawPhone)
	if err != nil {
		s.metrics.OTPRequested(err)
		return nil, err
	}
	return s.start(ctx, phone)
}

// Resend implements domain.OTPFlow. The previous code of the sid is
// invalidated and a new session replaces it, subject to the cooldown.
func (s *FlowService) Resend(ctx context.Context, sid string) (*domain.OTPChallenge, error) {
	sess, err := s.store.Lookup(ctx, sid)
	if err != nil {
		s.metrics.OTPRequested(err)
		return nil, err
	}
	if sess.Status == domain.OTPStatusVerified || sess.Status == domain.OTPStatusConsumed {
		err := domain.ErrSIDExpired.WithSID(sid)
		s.metrics.OTPRequested(err)
		return nil, err
	}
	return s.start(ctx, sess.Phone)
}

// start creates the session, commits it, then delivers the code.
func (s *FlowService) start(ctx context.Context, phone string) (*domain.OTPChallenge, error) {
	sess, code, err := s.store.Create(ctx, phone)
	if err != nil {
		s.metrics.OTPRequested(err)
		if errors.Is(err, domain.ErrRateLimited) {
			recordAudit(ctx, s.audit, s.logger,
				domain.NewAuditEvent(domain.OTPRateLimitedEvent, 0).WithPhone(phone).WithError(err))
		}
		return nil, err
	}

	link := s.magicLink(ctx, sess.SID)
	now := s.now()
	delivery := &domain.OTPDelivery{
		Phone:     phone,
		Code:      code,
		MagicLink: link,
		ExpiresIn: sess.ExpiresIn(now),
	}

	if err := s.gateway.Send(ctx, delivery); err != nil {
		s.metrics.Delivered(s.gateway.Channel(), err)
		failure, ok := domain.AsAuthError(err)
		if !ok {
			failure = domain.ErrDeliveryFailed.WithCause(err)
		}
		failure = failure.WithSID(sess.SID).WithRetryAfter(sess.RetryAfter(s.now()))
		s.metrics.OTPRequested(failure)
		recordAudit(ctx, s.audit, s.logger,
			domain.NewAuditEvent(domain.OTPDeliveryFailureEvent, 0).
				WithPhone(phone).
				WithSID(sess.SID).
				WithMetadata("channel", s.gateway.Channel()).
				WithError(err))
		return nil, failure
	}
	s.metrics.Delivered(s.gateway.Channel(), nil)
	s.metrics.OTPRequested(nil)

	recordAudit(ctx, s.audit, s.logger,
		domain.NewAuditEvent(domain.OTPRequestEvent, 0).
			WithPhone(phone).
			WithSID(sess.SID).
			WithMetadata("channel", s.gateway.Channel()).
			WithMetadata("magic_link", link != ""))

	return &domain.OTPChallenge{
		SID:         sess.SID,
		MaskedPhone: domain.MaskPhone(phone),
		ExpiresIn:   sess.ExpiresIn(now),
		Cooldown:    sess.RetryAfter(now),
		Step:        domain.StepOTPPending,
	}, nil
}

// magicLink attaches a magic link token to sid and renders its URL. The code
// alone is enough to finish the flow, so a failure only drops the link.
func (s *FlowService) magicLink(ctx context.Context, sid string) string {
	if s.cfg.MagicLinkBaseURL == "" {
		return ""
	}
	token, err := s.store.AttachMagicLink(ctx, sid)
	if err != nil {
		s.logger.Warn("magic link not attached", zap.String("sid", sid), zap.Error(err))
		return ""
	}
	link, err := buildMagicLink(s.cfg.MagicLinkBaseURL, token)
	if err != nil {
		s.logger.Warn("magic link base url is invalid", zap.Error(err))
		return ""
	}
	return link
}

func buildMagicLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse magic link base url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Verify implements domain.OTPFlow
func (s *FlowService) Verify(ctx context.Context, sid, code string) (*domain.AuthResult, error) {
	code = strings.TrimSpace(code)
	if !s.validCodeShape(code) {
		err := domain.ValidationFailed(fmt.Sprintf("code must have %d digits", s.policy.CodeLength)).WithSID(sid)
		s.metrics.OTPVerified(err)
		return nil, err
	}

	sess, err := s.store.Verify(ctx, sid, code)
	s.metrics.OTPVerified(err)
	if err != nil {
		event := domain.NewAuditEvent(domain.OTPVerifyFailureEvent, 0).WithSID(sid).WithError(err)
		if sess != nil {
			event.WithPhone(sess.Phone).WithMetadata("attempts", sess.Attempts)
		}
		recordAudit(ctx, s.audit, s.logger, event)
		return nil, err
	}

	recordAudit(ctx, s.audit, s.logger,
		domain.NewAuditEvent(domain.OTPVerifyEvent, 0).WithPhone(sess.Phone).WithSID(sid))

	return s.issuer.Issue(ctx, sid)
}

func (s *FlowService) validCodeShape(code string) bool {
	if len(code) != s.policy.CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Status implements domain.OTPFlow
func (s *FlowService) Status(ctx context.Context, sid string) (*domain.FlowState, error) {
	sess, err := s.store.Lookup(ctx, sid)
	if err != nil {
		return nil, err
	}
	now := s.now()

	state := &domain.FlowState{
		SID:         sid,
		Step:        domain.StepForStatus(sess.Status),
		MaskedPhone: domain.MaskPhone(sess.Phone),
	}
	switch sess.Status {
	case domain.OTPStatusPending:
		state.ExpiresIn = sess.ExpiresIn(now)
		state.Cooldown = sess.RetryAfter(now)
		state.AttemptsLeft = sess.AttemptsLeft(s.policy.MaxAttempts)
	case domain.OTPStatusConsumed:
		// A consumed sid resumes at the user's step, not at DONE.
		if user, err := s.users.FindByPhone(ctx, sess.Phone); err == nil {
			state.Step = domain.StepForUser(user)
		}
	}
	return state, nil
}

// Restart implements domain.OTPFlow
func (s *FlowService) Restart(ctx context.Context, sid string) (*domain.FlowState, error) {
	if sid != "" {
		if err := s.store.Discard(ctx, sid); err != nil {
			return nil, err
		}
	}
	return &domain.FlowState{Step: domain.StepPhone}, nil
}

// CompleteProfile implements domain.OTPFlow
func (s *FlowService) CompleteProfile(ctx context.Context, userID uint, name string, termsAccepted bool) (*domain.User, error) {
	if !termsAccepted {
		return nil, domain.ValidationFailed("terms must be accepted")
	}
	name = NormalizeName(name)
	switch n := utf8.RuneCountInString(name); {
	case n < minNameLength:
		return nil, domain.ValidationFailed(fmt.Sprintf("name must have at least %d characters", minNameLength))
	case n > maxNameLength:
		return nil, domain.ValidationFailed(fmt.Sprintf("name must have at most %d characters", maxNameLength))
	}

	user, err := s.users.MarkProfileCompleted(ctx, userID, name)
	if err != nil {
		if !errors.Is(err, domain.ErrProfileAlreadyCompleted) && !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to complete profile: %w", err)
		}
		return nil, err
	}

	recordAudit(ctx, s.audit, s.logger,
		domain.NewAuditEvent(domain.ProfileCompletedEvent, user.ID).WithPhone(user.Phone))
	return user, nil
}

// NormalizeName composes the name to NFC and collapses runs of whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}
