package mocks

import (
	"context"

	"github.com/you/civicauth/domain"
)

// MockOTPFlow implements domain.OTPFlow interface for testing
type MockOTPFlow struct {
	RequestOTPFunc      func(ctx context.Context, phone string) (*domain.OTPChallenge, error)
	ResendFunc          func(ctx context.Context, sid string) (*domain.OTPChallenge, error)
	VerifyFunc          func(ctx context.Context, sid, code string) (*domain.AuthResult, error)
	StatusFunc          func(ctx context.Context, sid string) (*domain.FlowState, error)
	RestartFunc         func(ctx context.Context, sid string) (*domain.FlowState, error)
	CompleteProfileFunc func(ctx context.Context, userID uint, name string, termsAccepted bool) (*domain.User, error)
}

// NewMockOTPFlow creates a new MockOTPFlow with default behaviors
func NewMockOTPFlow() *MockOTPFlow {
	return &MockOTPFlow{}
}

func defaultChallenge(sid string) *domain.OTPChallenge {
	return &domain.OTPChallenge{
		SID:         sid,
		MaskedPhone: "+55 (48) *****-1234",
		ExpiresIn:   300,
		Cooldown:    60,
		Step:        domain.StepOTPPending,
	}
}

// RequestOTP starts a new OTP session
func (m *MockOTPFlow) RequestOTP(ctx context.Context, phone string) (*domain.OTPChallenge, error) {
	if m.RequestOTPFunc != nil {
		return m.RequestOTPFunc(ctx, phone)
	}
	return defaultChallenge("mock-sid"), nil
}

// Resend replaces the code of an OTP session
func (m *MockOTPFlow) Resend(ctx context.Context, sid string) (*domain.OTPChallenge, error) {
	if m.ResendFunc != nil {
		return m.ResendFunc(ctx, sid)
	}
	return defaultChallenge("mock-sid-2"), nil
}

// Verify checks a code and issues tokens
func (m *MockOTPFlow) Verify(ctx context.Context, sid, code string) (*domain.AuthResult, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, sid, code)
	}
	return &domain.AuthResult{
		User:         &domain.User{ID: 1, Phone: "5548999991234", Role: domain.RolePending, IsActive: true, PhoneVerified: true},
		AccessToken:  "mock_access_token",
		RefreshToken: "mock_refresh_token",
		SessionID:    "mock_session_id",
		ExpiresIn:    900,
		IsNewUser:    true,
		NextStep:     domain.StepProfilePending,
	}, nil
}

// Status reports where a sid is in the flow
func (m *MockOTPFlow) Status(ctx context.Context, sid string) (*domain.FlowState, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, sid)
	}
	return &domain.FlowState{SID: sid, Step: domain.StepOTPPending, MaskedPhone: "+55 (48) *****-1234", ExpiresIn: 240, AttemptsLeft: 5}, nil
}

// Restart discards a sid
func (m *MockOTPFlow) Restart(ctx context.Context, sid string) (*domain.FlowState, error) {
	if m.RestartFunc != nil {
		return m.RestartFunc(ctx, sid)
	}
	return &domain.FlowState{Step: domain.StepPhone}, nil
}

// CompleteProfile finishes registration
func (m *MockOTPFlow) CompleteProfile(ctx context.Context, userID uint, name string, termsAccepted bool) (*domain.User, error) {
	if m.CompleteProfileFunc != nil {
		return m.CompleteProfileFunc(ctx, userID, name, termsAccepted)
	}
	return &domain.User{ID: userID, Name: name, Role: domain.RoleCitizen, IsActive: true, PhoneVerified: true, ProfileCompleted: true}, nil
}

// Compile-time interface compliance verification
var _ domain.OTPFlow = (*MockOTPFlow)(nil)

// MockMagicLinkResolver implements domain.MagicLinkResolver interface for testing
type MockMagicLinkResolver struct {
	ResolveFunc func(ctx context.Context, token string) (*domain.OTPChallenge, error)
}

// NewMockMagicLinkResolver creates a new MockMagicLinkResolver
func NewMockMagicLinkResolver() *MockMagicLinkResolver {
	return &MockMagicLinkResolver{}
}

// Resolve spends a magic link token
func (m *MockMagicLinkResolver) Resolve(ctx context.Context, token string) (*domain.OTPChallenge, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, token)
	}
	return defaultChallenge("mock-sid"), nil
}

var _ domain.MagicLinkResolver = (*MockMagicLinkResolver)(nil)
