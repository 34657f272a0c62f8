package mocks

import (
	"context"
	"sync"

	"github.com/you/civicauth/domain"
)

// MockDeliveryGateway implements domain.DeliveryGateway and records every
// delivery it is handed.
type MockDeliveryGateway struct {
	SendFunc func(ctx context.Context, delivery *domain.OTPDelivery) error

	mu   sync.Mutex
	sent []domain.OTPDelivery
}

// NewMockDeliveryGateway creates a new MockDeliveryGateway with default behaviors
func NewMockDeliveryGateway() *MockDeliveryGateway {
	return &MockDeliveryGateway{}
}

// Send records the delivery
func (m *MockDeliveryGateway) Send(ctx context.Context, delivery *domain.OTPDelivery) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, delivery); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, *delivery)
	return nil
}

// Channel implements domain.DeliveryGateway
func (m *MockDeliveryGateway) Channel() string { return "mock" }

// Sent returns a copy of the successful deliveries so far
func (m *MockDeliveryGateway) Sent() []domain.OTPDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OTPDelivery(nil), m.sent...)
}

// Last returns the most recent successful delivery
func (m *MockDeliveryGateway) Last() (domain.OTPDelivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return domain.OTPDelivery{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// Compile-time interface compliance verification
var _ domain.DeliveryGateway = (*MockDeliveryGateway)(nil)
