package mocks

import (
	"context"
	"sync"

	"github.com/you/civicauth/domain"
)

// MockAuditLogger implements domain.AuditLogger and keeps every event.
type MockAuditLogger struct {
	LogEventFunc func(ctx context.Context, event *domain.AuditEvent) error

	mu     sync.Mutex
	events []*domain.AuditEvent
}

// NewMockAuditLogger creates a new MockAuditLogger
func NewMockAuditLogger() *MockAuditLogger {
	return &MockAuditLogger{}
}

// LogEvent records the event
func (m *MockAuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.LogEventFunc != nil {
		return m.LogEventFunc(ctx, event)
	}
	return nil
}

// Events returns the recorded events of the given types, or all of them
// when no type is given.
func (m *MockAuditLogger) Events(types ...domain.AuditEventType) []*domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(types) == 0 {
		return append([]*domain.AuditEvent(nil), m.events...)
	}
	var out []*domain.AuditEvent
	for _, e := range m.events {
		for _, t := range types {
			if e.EventType == t {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

var _ domain.AuditLogger = (*MockAuditLogger)(nil)
