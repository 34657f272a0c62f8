package audit

import (
	"context"
	"errors"

	"github.com/you/civicauth/domain"
)

// MultiLogger fans an event out to every sink. All sinks are attempted
// even when one fails.
type MultiLogger struct {
	sinks []domain.AuditLogger
}

// NewMultiLogger creates a fan-out audit logger. Nil sinks are skipped.
func NewMultiLogger(sinks ...domain.AuditLogger) *MultiLogger {
	m := &MultiLogger{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// LogEvent implements domain.AuditLogger
func (m *MultiLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.LogEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
