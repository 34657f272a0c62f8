package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/civicauth/internal/infrastructure/auth"
	"github.com/you/civicauth/internal/infrastructure/repositories"
	"github.com/you/civicauth/internal/metrics"
	"github.com/you/civicauth/internal/mocks"
	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSweeper_SweepOnce(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := repositories.NewMemoryOTPStore(auth.NewCodeHasher(bcrypt.MinCost), repositories.OTPConfig{
		TTL:       5 * time.Minute,
		Cooldown:  time.Minute,
		Retention: 10 * time.Minute,
		Now:       clk.Now,
	})
	ctx := context.Background()
	old, _, err := store.Create(ctx, "5548999990001")
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	_, _, err = store.Create(ctx, "5548999990002")
	require.NoError(t, err)

	sessions := mocks.NewMockSessionRepository()
	var cleaned bool
	sessions.DeleteExpiredFunc = func(ctx context.Context) error {
		cleaned = true
		return errors.New("not supported")
	}

	s := NewSweeper(store, sessions, time.Minute, metrics.New(), nil)

	// The first session is still retained: expired at +5m, kept until +15m.
	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, cleaned)

	clk.Advance(5 * time.Minute)
	n, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())

	_, err = store.Lookup(ctx, old.SID)
	assert.Error(t, err)
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	store := repositories.NewMemoryOTPStore(auth.NewCodeHasher(bcrypt.MinCost), repositories.OTPConfig{})
	s := NewSweeper(store, nil, 10*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
