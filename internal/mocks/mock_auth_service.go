package mocks

import (
	"context"
	"time"

	"github.com/you/civicauth/domain"
)

// MockAuthService implements domain.AuthService interface for testing
type MockAuthService struct {
	RefreshTokenFunc   func(ctx context.Context, refreshToken string) (*domain.AuthResult, error)
	LogoutFunc         func(ctx context.Context, userID uint, sessionID string) error
	GetUserProfileFunc func(ctx context.Context, userID uint) (*domain.User, error)
}

// NewMockAuthService creates a new MockAuthService with default behaviors
func NewMockAuthService() *MockAuthService {
	return &MockAuthService{}
}

// RefreshToken refreshes an access token using a refresh token
func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	// Default behavior: return new auth result
	return &domain.AuthResult{
		User: &domain.User{
			ID:               1,
			Phone:            "5548999991234",
			Role:             domain.RoleCitizen,
			IsActive:         true,
			PhoneVerified:    true,
			ProfileCompleted: true,
		},
		AccessToken:  "new_mock_access_token",
		RefreshToken: refreshToken,
		SessionID:    "mock_session_id",
		ExpiresIn:    900, // 15 minutes
		NextStep:     domain.StepDone,
	}, nil
}

// Logout terminates a session
func (m *MockAuthService) Logout(ctx context.Context, userID uint, sessionID string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, userID, sessionID)
	}
	// Default behavior: success
	return nil
}

// GetUserProfile retrieves user profile information
func (m *MockAuthService) GetUserProfile(ctx context.Context, userID uint) (*domain.User, error) {
	if m.GetUserProfileFunc != nil {
		return m.GetUserProfileFunc(ctx, userID)
	}
	// Default behavior: return mock user profile
	return &domain.User{
		ID:               userID,
		Phone:            "5548999991234",
		Name:             "Maria da Silva",
		Role:             domain.RoleCitizen,
		IsActive:         true,
		PhoneVerified:    true,
		ProfileCompleted: true,
		CreatedAt:        time.Now().Add(-24 * time.Hour),
		UpdatedAt:        time.Now(),
	}, nil
}

// Compile-time interface compliance verification
var _ domain.AuthService = (*MockAuthService)(nil)
