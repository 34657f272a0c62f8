package domain

import "context"

// UserRepository defines user data access operations
type UserRepository interface {
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByID(ctx context.Context, id uint) (*User, error)
	// CreateWithPhone inserts a pending user. A duplicate phone yields
	// ErrUserCreationConflict.
	CreateWithPhone(ctx context.Context, phone string) (*User, error)
	MarkPhoneVerified(ctx context.Context, userID uint) error
	MarkProfileCompleted(ctx context.Context, userID uint, name string) (*User, error)
}

// SessionRepository defines auth session data access operations
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	FindByID(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteExpired(ctx context.Context) error
}

// OTPSessionStore owns every OTPSession. All mutations are serialized per
// sid by the implementation; callers never read-modify-write a session.
type OTPSessionStore interface {
	// Create starts a PENDING session for an already normalized phone and
	// returns the clear code for delivery. A live session for the same
	// phone still inside its cooldown yields a RateLimited error; otherwise
	// that session is invalidated and replaced.
	Create(ctx context.Context, phone string) (*OTPSession, string, error)
	// Lookup returns a copy whose Status is the effective status.
	Lookup(ctx context.Context, sid string) (*OTPSession, error)
	Verify(ctx context.Context, sid, code string) (*OTPSession, error)
	Consume(ctx context.Context, sid string) error
	Discard(ctx context.Context, sid string) error
	AttachMagicLink(ctx context.Context, sid string) (string, error)
	// ResolveMagicLink spends a magic link token and returns its session.
	ResolveMagicLink(ctx context.Context, token string) (*OTPSession, error)
	// Sweep removes sessions past their retention window.
	Sweep(ctx context.Context) (int, error)
	// Policy reports the code policy the store enforces.
	Policy() OTPPolicy
}

// DeliveryGateway sends a code to the phone over an external channel
type DeliveryGateway interface {
	Send(ctx context.Context, delivery *OTPDelivery) error
	Channel() string
}

// CodeHasher defines one-way hashing for OTP codes
type CodeHasher interface {
	Hash(code string) (string, error)
	Verify(hash, code string) bool
}

// TokenService defines token operations
type TokenService interface {
	GenerateAccessToken(userID uint, role string, sessionID string) (string, error)
	GenerateRefreshToken(userID uint, role string, sessionID string) (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)
	ValidateRefreshToken(token string) (*TokenClaims, error)
}

// OTPFlow orchestrates the phone -> otp -> profile state machine
type OTPFlow interface {
	RequestOTP(ctx context.Context, phone string) (*OTPChallenge, error)
	Resend(ctx context.Context, sid string) (*OTPChallenge, error)
	Verify(ctx context.Context, sid, code string) (*AuthResult, error)
	Status(ctx context.Context, sid string) (*FlowState, error)
	Restart(ctx context.Context, sid string) (*FlowState, error)
	CompleteProfile(ctx context.Context, userID uint, name string, termsAccepted bool) (*User, error)
}

// SessionIssuer mints the token pair for a verified OTP session
type SessionIssuer interface {
	Issue(ctx context.Context, sid string) (*AuthResult, error)
}

// MagicLinkResolver turns a magic link token into a pending challenge
type MagicLinkResolver interface {
	Resolve(ctx context.Context, token string) (*OTPChallenge, error)
}

// AuthService defines the post-login session operations
type AuthService interface {
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, userID uint, sessionID string) error
	GetUserProfile(ctx context.Context, userID uint) (*User, error)
}

// PolicyService defines authorization policy operations
type PolicyService interface {
	AddPolicy(role, resource, action string) error
	RemovePolicy(role, resource, action string) error
	CheckPermission(role, resource, action string) (bool, error)
	GetPolicies() [][]string
	SeedDefaults() (bool, error)
}

// TokenClaims represents JWT token claims
type TokenClaims struct {
	UserID    uint   `json:"user_id"`
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
	TokenType string `json:"typ"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// CasbinEnforcer interface defines the methods we need from Casbin enforcer
type CasbinEnforcer interface {
	AddPolicy(params ...interface{}) (bool, error)
	RemovePolicy(params ...interface{}) (bool, error)
	Enforce(rvals ...interface{}) (bool, error)
	GetPolicy() ([][]string, error)
	SavePolicy() error
}
