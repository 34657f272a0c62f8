package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/metrics"
	"go.uber.org/zap"
)

// SessionIssuerImpl implements domain.SessionIssuer
type SessionIssuerImpl struct {
	store       domain.OTPSessionStore
	userRepo    domain.UserRepository
	sessionRepo domain.SessionRepository
	tokenSvc    domain.TokenService
	audit       domain.AuditLogger
	metrics     *metrics.Metrics
	logger      *zap.Logger
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time
}

// NewSessionIssuer creates a new session issuer
func NewSessionIssuer(
	store domain.OTPSessionStore,
	userRepo domain.UserRepository,
	sessionRepo domain.SessionRepository,
	tokenSvc domain.TokenService,
	audit domain.AuditLogger,
	m *metrics.Metrics,
	logger *zap.Logger,
	accessTTL, refreshTTL time.Duration,
) *SessionIssuerImpl {
	return &SessionIssuerImpl{
		store:       store,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokenSvc:    tokenSvc,
		audit:       audit,
		metrics:     m,
		logger:      orNop(logger).Named("issuer"),
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		now:         time.Now,
	}
}

// Issue implements domain.SessionIssuer. The OTP session is consumed before
// any token is minted; a failed consume means another request already
// issued for this sid.
func (s *SessionIssuerImpl) Issue(ctx context.Context, sid string) (*domain.AuthResult, error) {
	sess, err := s.store.Lookup(ctx, sid)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.OTPStatusVerified {
		return nil, notVerifiedError(sess)
	}

	// The user is resolved before Consume. A failure here leaves the sid
	// VERIFIED until its TTL and the client has to request a new code.
	user, created, err := s.resolveUser(ctx, sess.Phone)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}

	if err := s.store.Consume(ctx, sid); err != nil {
		return nil, err
	}

	if !user.PhoneVerified {
		if err := s.userRepo.MarkPhoneVerified(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("failed to mark phone verified: %w", err)
		}
		user.PhoneVerified = true
	}

	now := s.now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	accessToken, err := s.tokenSvc.GenerateAccessToken(user.ID, user.Role, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.tokenSvc.GenerateRefreshToken(user.ID, user.Role, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	isNewUser := !user.ProfileCompleted
	s.metrics.SessionIssued(isNewUser)
	if created {
		recordAudit(ctx, s.audit, s.logger,
			domain.NewAuditEvent(domain.UserRegistrationEvent, user.ID).WithPhone(user.Phone).WithSID(sid))
	}
	event := domain.NewAuditEvent(domain.SessionIssuedEvent, user.ID).
		WithPhone(user.Phone).
		WithSID(sid).
		WithMetadata("is_new_user", isNewUser)
	event.SessionID = session.ID
	recordAudit(ctx, s.audit, s.logger, event)

	return &domain.AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    session.ID,
		ExpiresIn:    int64(s.accessTTL / time.Second),
		IsNewUser:    isNewUser,
		NextStep:     domain.StepForUser(user),
	}, nil
}

// resolveUser finds the user owning phone or creates a pending one. Losing
// the insert race to a concurrent request is answered by reading the winner.
func (s *SessionIssuerImpl) resolveUser(ctx context.Context, phone string) (*domain.User, bool, error) {
	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}

	user, err = s.userRepo.CreateWithPhone(ctx, phone)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, domain.ErrUserCreationConflict) {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user created concurrently, retrying as lookup", zap.String("phone", domain.MaskPhone(phone)))
	user, lookupErr := s.userRepo.FindByPhone(ctx, phone)
	if lookupErr != nil {
		return nil, false, err
	}
	return user, false, nil
}

func notVerifiedError(sess *domain.OTPSession) error {
	switch sess.Status {
	case domain.OTPStatusPending:
		return domain.ErrOTPNotVerified.WithSID(sess.SID)
	case domain.OTPStatusExpired:
		return domain.ErrOTPExpired.WithSID(sess.SID)
	default:
		return domain.ErrSIDExpired.WithSID(sess.SID)
	}
}
