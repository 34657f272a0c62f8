package services

import (
	"context"
	"strings"
	"time"

	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/metrics"
	"go.uber.org/zap"
)

// MagicLinkResolverImpl implements domain.MagicLinkResolver
type MagicLinkResolverImpl struct {
	store   domain.OTPSessionStore
	audit   domain.AuditLogger
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewMagicLinkResolver creates a new magic link resolver
func NewMagicLinkResolver(store domain.OTPSessionStore, audit domain.AuditLogger, m *metrics.Metrics, logger *zap.Logger) *MagicLinkResolverImpl {
	return &MagicLinkResolverImpl{
		store:   store,
		audit:   audit,
		metrics: m,
		logger:  orNop(logger).Named("magic_link"),
		now:     time.Now,
	}
}

// Resolve implements domain.MagicLinkResolver. The token is spent by the
// lookup even when its session can no longer be verified.
func (r *MagicLinkResolverImpl) Resolve(ctx context.Context, token string) (*domain.OTPChallenge, error) {
	challenge, err := r.resolve(ctx, strings.TrimSpace(token))
	r.metrics.MagicLinkResolved(err)
	return challenge, err
}

func (r *MagicLinkResolverImpl) resolve(ctx context.Context, token string) (*domain.OTPChallenge, error) {
	if token == "" {
		return nil, domain.ErrMagicLinkInvalid
	}

	sess, err := r.store.ResolveMagicLink(ctx, token)
	if err != nil {
		recordAudit(ctx, r.audit, r.logger,
			domain.NewAuditEvent(domain.MagicLinkRejectedEvent, 0).WithError(err))
		return nil, err
	}

	if sess.Status != domain.OTPStatusPending {
		err := domain.ErrMagicLinkExpired.WithSID(sess.SID)
		recordAudit(ctx, r.audit, r.logger,
			domain.NewAuditEvent(domain.MagicLinkRejectedEvent, 0).
				WithPhone(sess.Phone).
				WithSID(sess.SID).
				WithError(err))
		return nil, err
	}

	now := r.now()
	recordAudit(ctx, r.audit, r.logger,
		domain.NewAuditEvent(domain.MagicLinkResolvedEvent, 0).WithPhone(sess.Phone).WithSID(sess.SID))

	return &domain.OTPChallenge{
		SID:         sess.SID,
		MaskedPhone: domain.MaskPhone(sess.Phone),
		ExpiresIn:   sess.ExpiresIn(now),
		Cooldown:    sess.RetryAfter(now),
		Step:        domain.StepOTPPending,
	}, nil
}
