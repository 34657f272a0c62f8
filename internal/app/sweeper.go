package app

import (
	"context"
	"time"

	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/metrics"
	"go.uber.org/zap"
)

// Sweeper periodically drops OTP sessions past their retention window.
// Correctness never depends on it: expiry is evaluated on every read.
type Sweeper struct {
	store    domain.OTPSessionStore
	sessions domain.SessionRepository
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(store domain.OTPSessionStore, sessions domain.SessionRepository, interval time.Duration, m *metrics.Metrics, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    store,
		sessions: sessions,
		interval: interval,
		metrics:  m,
		logger:   logger.Named("sweeper"),
	}
}

// SweepOnce runs a single pass and returns the number of OTP sessions removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.store.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.Swept(n)
	if s.sessions != nil {
		if err := s.sessions.DeleteExpired(ctx); err != nil {
			s.logger.Warn("failed to delete expired auth sessions", zap.Error(err))
		}
	}
	return n, nil
}

// Run sweeps until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("sweep failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				s.logger.Debug("swept otp sessions", zap.Int("removed", n))
			}
		}
	}
}
