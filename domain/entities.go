package domain

import "time"

// User roles. A user stays RolePending until the profile completion step.
const (
	RolePending = "pending"
	RoleCitizen = "citizen"
	RoleAdmin   = "admin"
)

// User represents a citizen account keyed by its verified phone number
type User struct {
	ID               uint
	Phone            string
	Name             string
	Role             string
	IsActive         bool
	PhoneVerified    bool
	ProfileCompleted bool
	TermsAcceptedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AuthResult represents authentication outcome
type AuthResult struct {
	User         *User
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresIn    int64
	IsNewUser    bool
	NextStep     FlowStep
}

// Session represents an issued auth session backing a refresh token
type Session struct {
	ID        string
	UserID    uint
	ExpiresAt time.Time
	CreatedAt time.Time
}

// OTPStatus is the stored lifecycle state of an OTPSession.
type OTPStatus string

const (
	OTPStatusPending  OTPStatus = "PENDING"
	OTPStatusVerified OTPStatus = "VERIFIED"
	OTPStatusExpired  OTPStatus = "EXPIRED"
	OTPStatusConsumed OTPStatus = "CONSUMED"
)

// OTPPolicy is the code shape and attempt budget of an OTP session store.
type OTPPolicy struct {
	CodeLength  int
	MaxAttempts int
}

// OTPSession is a short lived verification attempt bound to one phone.
// Only the bcrypt hash of the code is kept.
type OTPSession struct {
	SID            string    `json:"sid"`
	Phone          string    `json:"phone"`
	CodeHash       string    `json:"code_hash"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	CooldownUntil  time.Time `json:"cooldown_until"`
	Attempts       int       `json:"attempts"`
	Status         OTPStatus `json:"status"`
	MagicTokenHash string    `json:"magic_token_hash,omitempty"`
}

// EffectiveStatus applies lazy expiry: a pending or verified session past
// ExpiresAt is EXPIRED whatever its stored status says.
func (s *OTPSession) EffectiveStatus(now time.Time) OTPStatus {
	if (s.Status == OTPStatusPending || s.Status == OTPStatusVerified) && !now.Before(s.ExpiresAt) {
		return OTPStatusExpired
	}
	return s.Status
}

// ExpiresIn returns the whole seconds left before expiry, rounded up.
func (s *OTPSession) ExpiresIn(now time.Time) int64 {
	return ceilSeconds(s.ExpiresAt.Sub(now))
}

// RetryAfter returns the whole seconds left in the resend cooldown, rounded up.
func (s *OTPSession) RetryAfter(now time.Time) int64 {
	return ceilSeconds(s.CooldownUntil.Sub(now))
}

// InCooldown reports whether a new code for the same phone must be refused.
// The cooldown outlives verification, consumption, lockout and restart; only
// reaching ExpiresAt ends it early.
func (s *OTPSession) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil) && now.Before(s.ExpiresAt)
}

// ApplyVerification records the outcome of comparing a submitted code.
// Callers must hold the single-writer lock for the session. A mismatch
// counts as an attempt; the attempt that reaches maxAttempts expires the
// session so even the right code is refused afterwards.
func (s *OTPSession) ApplyVerification(match bool, maxAttempts int, now time.Time) error {
	switch s.EffectiveStatus(now) {
	case OTPStatusExpired:
		s.Status = OTPStatusExpired
		return ErrOTPExpired.WithSID(s.SID)
	case OTPStatusVerified, OTPStatusConsumed:
		return ErrSIDExpired.WithSID(s.SID)
	}

	if !match {
		s.Attempts++
		if maxAttempts > 0 && s.Attempts >= maxAttempts {
			s.Status = OTPStatusExpired
			return ErrOTPMaxAttempts.WithSID(s.SID)
		}
		return ErrOTPInvalid.WithSID(s.SID)
	}

	s.Status = OTPStatusVerified
	return nil
}

// MarkConsumed moves a verified session to CONSUMED. It fails for every
// other state so tokens are issued at most once per session.
func (s *OTPSession) MarkConsumed(now time.Time) error {
	switch s.EffectiveStatus(now) {
	case OTPStatusVerified:
		s.Status = OTPStatusConsumed
		return nil
	case OTPStatusPending:
		return ErrOTPNotVerified.WithSID(s.SID)
	case OTPStatusExpired:
		return ErrOTPExpired.WithSID(s.SID)
	default:
		return ErrSIDExpired.WithSID(s.SID)
	}
}

// Invalidate expires a pending session that is being replaced.
func (s *OTPSession) Invalidate() {
	if s.Status == OTPStatusPending {
		s.Status = OTPStatusExpired
	}
}

// Abandon expires a session the client gave up on. A consumed session keeps
// its status. The cooldown timestamps are left as they are.
func (s *OTPSession) Abandon() {
	if s.Status != OTPStatusConsumed {
		s.Status = OTPStatusExpired
	}
	s.MagicTokenHash = ""
}

// AttemptsLeft returns how many wrong codes the session still tolerates.
func (s *OTPSession) AttemptsLeft(maxAttempts int) int {
	if left := maxAttempts - s.Attempts; left > 0 {
		return left
	}
	return 0
}

// OTPChallenge is what a client learns after an OTP request or a magic link
// resolution. It never contains the code.
type OTPChallenge struct {
	SID         string
	MaskedPhone string
	ExpiresIn   int64
	Cooldown    int64
	Step        FlowStep
}

// FlowState is the resumable view of a sid.
type FlowState struct {
	SID          string
	Step         FlowStep
	MaskedPhone  string
	ExpiresIn    int64
	Cooldown     int64
	AttemptsLeft int
}

// OTPDelivery is the message handed to a DeliveryGateway.
type OTPDelivery struct {
	Phone     string
	Code      string
	MagicLink string
	ExpiresIn int64
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
