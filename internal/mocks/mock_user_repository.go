package mocks

import (
	"context"

	"github.com/you/civicauth/domain"
)

// MockUserRepository implements domain.UserRepository interface for testing
type MockUserRepository struct {
	FindByPhoneFunc          func(ctx context.Context, phone string) (*domain.User, error)
	FindByIDFunc             func(ctx context.Context, id uint) (*domain.User, error)
	CreateWithPhoneFunc      func(ctx context.Context, phone string) (*domain.User, error)
	MarkPhoneVerifiedFunc    func(ctx context.Context, userID uint) error
	MarkProfileCompletedFunc func(ctx context.Context, userID uint, name string) (*domain.User, error)
}

// NewMockUserRepository creates a new MockUserRepository with default behaviors
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{}
}

// FindByPhone finds a user by phone number
func (m *MockUserRepository) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	if m.FindByPhoneFunc != nil {
		return m.FindByPhoneFunc(ctx, phone)
	}
	// Default behavior: not found
	return nil, domain.ErrUserNotFound
}

// FindByID finds a user by ID
func (m *MockUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	// Default behavior: not found
	return nil, domain.ErrUserNotFound
}

// CreateWithPhone creates a pending user
func (m *MockUserRepository) CreateWithPhone(ctx context.Context, phone string) (*domain.User, error) {
	if m.CreateWithPhoneFunc != nil {
		return m.CreateWithPhoneFunc(ctx, phone)
	}
	// Default behavior: a fresh pending user
	return &domain.User{ID: 1, Phone: phone, Role: domain.RolePending, IsActive: true}, nil
}

// MarkPhoneVerified flags the phone of a user as verified
func (m *MockUserRepository) MarkPhoneVerified(ctx context.Context, userID uint) error {
	if m.MarkPhoneVerifiedFunc != nil {
		return m.MarkPhoneVerifiedFunc(ctx, userID)
	}
	return nil
}

// MarkProfileCompleted stores the name and promotes the user to citizen
func (m *MockUserRepository) MarkProfileCompleted(ctx context.Context, userID uint, name string) (*domain.User, error) {
	if m.MarkProfileCompletedFunc != nil {
		return m.MarkProfileCompletedFunc(ctx, userID, name)
	}
	return &domain.User{
		ID:               userID,
		Name:             name,
		Role:             domain.RoleCitizen,
		IsActive:         true,
		PhoneVerified:    true,
		ProfileCompleted: true,
	}, nil
}

// Compile-time interface compliance verification
var _ domain.UserRepository = (*MockUserRepository)(nil)
