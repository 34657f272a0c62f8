package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/you/civicauth/domain"
	"go.uber.org/zap"
)

// AuthServiceImpl implements domain.AuthService
type AuthServiceImpl struct {
	userRepo    domain.UserRepository
	sessionRepo domain.SessionRepository
	tokenSvc    domain.TokenService
	audit       domain.AuditLogger
	logger      *zap.Logger
	accessTTL   time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo domain.UserRepository,
	sessionRepo domain.SessionRepository,
	tokenSvc domain.TokenService,
	audit domain.AuditLogger,
	logger *zap.Logger,
	accessTTL time.Duration,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokenSvc:    tokenSvc,
		audit:       audit,
		logger:      orNop(logger).Named("auth"),
		accessTTL:   accessTTL,
	}
}

// RefreshToken implements domain.AuthService. The role is read again from
// the user so a completed profile takes effect on the next refresh.
func (s *AuthServiceImpl) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	claims, err := s.tokenSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return nil, err
		}
		return nil, domain.ErrTokenInvalid
	}

	// Check session exists
	session, err := s.sessionRepo.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			return nil, err
		}
		return nil, domain.ErrSessionNotFound
	}
	if session.UserID != claims.UserID {
		return nil, domain.ErrTokenInvalid
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}

	accessToken, err := s.tokenSvc.GenerateAccessToken(user.ID, user.Role, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &domain.AuthResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken, // Keep same refresh token
		SessionID:    session.ID,
		ExpiresIn:    int64(s.accessTTL / time.Second),
		IsNewUser:    !user.ProfileCompleted,
		NextStep:     domain.StepForUser(user),
	}, nil
}

// Logout implements domain.AuthService. Logging out of an unknown or
// expired session succeeds.
func (s *AuthServiceImpl) Logout(ctx context.Context, userID uint, sessionID string) error {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionExpired) {
			return nil
		}
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session.UserID != userID {
		return domain.ErrUnauthorized
	}

	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	event := domain.NewAuditEvent(domain.UserLogoutEvent, userID)
	event.SessionID = sessionID
	recordAudit(ctx, s.audit, s.logger, event)
	return nil
}

// GetUserProfile implements domain.AuthService
func (s *AuthServiceImpl) GetUserProfile(ctx context.Context, userID uint) (*domain.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}
