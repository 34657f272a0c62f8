package mocks

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/you/civicauth/domain"
)

// MockTokenService implements domain.TokenService. By default it mints
// readable tokens of the form "<type>.<user id>.<role>.<session id>" and
// validates exactly those.
type MockTokenService struct {
	GenerateAccessTokenFunc  func(userID uint, role string, sessionID string) (string, error)
	GenerateRefreshTokenFunc func(userID uint, role string, sessionID string) (string, error)
	ValidateAccessTokenFunc  func(token string) (*domain.TokenClaims, error)
	ValidateRefreshTokenFunc func(token string) (*domain.TokenClaims, error)

	AccessTTL time.Duration
}

// NewMockTokenService creates a new MockTokenService with default behaviors
func NewMockTokenService() *MockTokenService {
	return &MockTokenService{AccessTTL: 15 * time.Minute}
}

func mintMockToken(kind string, userID uint, role, sessionID string) string {
	return fmt.Sprintf("%s.%d.%s.%s", kind, userID, role, sessionID)
}

func parseMockToken(kind, token string, ttl time.Duration) (*domain.TokenClaims, error) {
	parts := strings.SplitN(token, ".", 4)
	if len(parts) != 4 || parts[0] != kind {
		return nil, domain.ErrTokenInvalid
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, domain.ErrTokenMalformed
	}
	now := time.Now().Unix()
	return &domain.TokenClaims{
		UserID:    uint(id),
		Role:      parts[2],
		SessionID: parts[3],
		TokenType: kind,
		IssuedAt:  now,
		ExpiresAt: now + int64(ttl.Seconds()),
	}, nil
}

// GenerateAccessToken implements domain.TokenService
func (m *MockTokenService) GenerateAccessToken(userID uint, role string, sessionID string) (string, error) {
	if m.GenerateAccessTokenFunc != nil {
		return m.GenerateAccessTokenFunc(userID, role, sessionID)
	}
	return mintMockToken("access", userID, role, sessionID), nil
}

// GenerateRefreshToken implements domain.TokenService
func (m *MockTokenService) GenerateRefreshToken(userID uint, role string, sessionID string) (string, error) {
	if m.GenerateRefreshTokenFunc != nil {
		return m.GenerateRefreshTokenFunc(userID, role, sessionID)
	}
	return mintMockToken("refresh", userID, role, sessionID), nil
}

// ValidateAccessToken implements domain.TokenService
func (m *MockTokenService) ValidateAccessToken(token string) (*domain.TokenClaims, error) {
	if m.ValidateAccessTokenFunc != nil {
		return m.ValidateAccessTokenFunc(token)
	}
	return parseMockToken("access", token, m.AccessTTL)
}

// ValidateRefreshToken implements domain.TokenService
func (m *MockTokenService) ValidateRefreshToken(token string) (*domain.TokenClaims, error) {
	if m.ValidateRefreshTokenFunc != nil {
		return m.ValidateRefreshTokenFunc(token)
	}
	return parseMockToken("refresh", token, 30*24*time.Hour)
}

// Compile-time interface compliance verification
var _ domain.TokenService = (*MockTokenService)(nil)
