package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/casbin/casbin/v2/model"
	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/infrastructure/auth"
	"github.com/you/civicauth/internal/infrastructure/repositories"
	"github.com/you/civicauth/internal/mocks"
	"golang.org/x/crypto/bcrypt"
)

const testPhone = "5548999991234"

// createTestContext creates a context for testing with timeout
func createTestContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// createValidUser creates a citizen with a completed profile
func createValidUser(t *testing.T) *domain.User {
	t.Helper()

	accepted := time.Now().Add(-time.Hour)
	return &domain.User{
		ID:               1,
		Phone:            testPhone,
		Name:             "Maria da Silva",
		Role:             domain.RoleCitizen,
		IsActive:         true,
		PhoneVerified:    true,
		ProfileCompleted: true,
		TermsAcceptedAt:  &accepted,
		CreatedAt:        time.Now().Add(-24 * time.Hour), // Created yesterday
		UpdatedAt:        time.Now().Add(-1 * time.Hour),  // Updated 1 hour ago
	}
}

// createPendingUser creates a user that has verified a phone but not
// completed the profile
func createPendingUser(t *testing.T) *domain.User {
	t.Helper()

	user := createValidUser(t)
	user.Name = ""
	user.Role = domain.RolePending
	user.ProfileCompleted = false
	user.TermsAcceptedAt = nil
	return user
}

// createValidSession creates a valid session entity for testing
func createValidSession(t *testing.T, userID uint) *domain.Session {
	t.Helper()

	return &domain.Session{
		ID:        "sess_123_456789",
		UserID:    userID,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour), // Expires in 7 days
		CreatedAt: time.Now(),
	}
}

// createValidTokenClaims creates valid refresh token claims for testing
func createValidTokenClaims(t *testing.T, userID uint, role string, sessionID string) *domain.TokenClaims {
	t.Helper()

	now := time.Now().Unix()
	return &domain.TokenClaims{
		UserID:    userID,
		Role:      role,
		SessionID: sessionID,
		TokenType: auth.TokenTypeRefresh,
		IssuedAt:  now,
		ExpiresAt: now + 900, // 15 minutes
	}
}

func mustDefaultModel(t *testing.T) model.Model {
	t.Helper()

	m, err := model.NewModelFromString(auth.DefaultModel)
	if err != nil {
		t.Fatalf("failed to parse model: %v", err)
	}
	return m
}

// testClock is a settable clock shared by the store and the services.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newUserStore wires a MockUserRepository to an in-memory table with a
// unique phone index.
func newUserStore(tb testing.TB) *mocks.MockUserRepository {
	tb.Helper()

	var (
		mu     sync.Mutex
		nextID uint = 1
		rows        = map[uint]*domain.User{}
	)
	find := func(match func(*domain.User) bool) (*domain.User, error) {
		mu.Lock()
		defer mu.Unlock()
		for _, u := range rows {
			if match(u) {
				cp := *u
				return &cp, nil
			}
		}
		return nil, domain.ErrUserNotFound
	}

	repo := mocks.NewMockUserRepository()
	repo.FindByPhoneFunc = func(ctx context.Context, phone string) (*domain.User, error) {
		return find(func(u *domain.User) bool { return u.Phone == phone })
	}
	repo.FindByIDFunc = func(ctx context.Context, id uint) (*domain.User, error) {
		return find(func(u *domain.User) bool { return u.ID == id })
	}
	repo.CreateWithPhoneFunc = func(ctx context.Context, phone string) (*domain.User, error) {
		mu.Lock()
		defer mu.Unlock()
		for _, u := range rows {
			if u.Phone == phone {
				return nil, domain.ErrUserCreationConflict
			}
		}
		u := &domain.User{ID: nextID, Phone: phone, Role: domain.RolePending, IsActive: true}
		nextID++
		rows[u.ID] = u
		cp := *u
		return &cp, nil
	}
	repo.MarkPhoneVerifiedFunc = func(ctx context.Context, id uint) error {
		mu.Lock()
		defer mu.Unlock()
		u, ok := rows[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		u.PhoneVerified = true
		return nil
	}
	repo.MarkProfileCompletedFunc = func(ctx context.Context, id uint, name string) (*domain.User, error) {
		mu.Lock()
		defer mu.Unlock()
		u, ok := rows[id]
		if !ok {
			return nil, domain.ErrUserNotFound
		}
		if u.ProfileCompleted {
			return nil, domain.ErrProfileAlreadyCompleted
		}
		now := time.Now()
		u.Name, u.ProfileCompleted, u.Role, u.TermsAcceptedAt = name, true, domain.RoleCitizen, &now
		cp := *u
		return &cp, nil
	}
	return repo
}

// flowFixture is a FlowService over a real in-memory OTP store.
type flowFixture struct {
	flow     *FlowService
	issuer   *SessionIssuerImpl
	store    *repositories.MemoryOTPStore
	gateway  *mocks.MockDeliveryGateway
	users    *mocks.MockUserRepository
	sessions *mocks.MockSessionRepository
	audit    *mocks.MockAuditLogger
	clock    *testClock
}

func newFlowFixture(tb testing.TB) *flowFixture {
	tb.Helper()

	clock := newTestClock()
	store := repositories.NewMemoryOTPStore(auth.NewCodeHasher(bcrypt.MinCost), repositories.OTPConfig{
		TTL:         300 * time.Second,
		Cooldown:    60 * time.Second,
		MaxAttempts: 5,
		Now:         clock.Now,
	})
	f := &flowFixture{
		store:    store,
		gateway:  mocks.NewMockDeliveryGateway(),
		users:    newUserStore(tb),
		sessions: mocks.NewMockSessionRepository(),
		audit:    mocks.NewMockAuditLogger(),
		clock:    clock,
	}
	f.issuer = NewSessionIssuer(store, f.users, f.sessions, mocks.NewMockTokenService(), f.audit, nil, nil,
		15*time.Minute, 720*time.Hour)
	f.issuer.now = clock.Now
	f.flow = NewFlowService(store, f.gateway, f.issuer, f.users, f.audit, nil, nil, FlowConfig{
		MagicLinkBaseURL: "https://app.example.gov.br/entrar",
	})
	f.flow.now = clock.Now
	return f
}

// lastCode returns the code most recently handed to the gateway.
func (f *flowFixture) lastCode(t testing.TB) string {
	t.Helper()

	d, ok := f.gateway.Last()
	if !ok {
		t.Fatal("no code was delivered")
	}
	return d.Code
}

// wrongCode returns a well formed code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
