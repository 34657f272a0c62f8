package domain

import "errors"

// ErrorKind classifies AuthError values by how a caller recovers from them.
type ErrorKind int

const (
	// KindValidation errors are rejected before any state mutation; fix the input and retry.
	KindValidation ErrorKind = iota + 1
	// KindRateLimit errors clear after RetryAfter seconds.
	KindRateLimit
	// KindSessionState errors are terminal for the current sid.
	KindSessionState
	// KindNotFound errors mean the referenced sid or token is unknown.
	KindNotFound
	// KindConflict errors are transient; retry as a read.
	KindConflict
	// KindDelivery errors come from the messaging provider and are retryable.
	KindDelivery
	// KindUnauthorized errors require a new authentication.
	KindUnauthorized
)

// Error codes exposed to clients.
const (
	CodeInvalidPhone            = "INVALID_PHONE"
	CodeValidation              = "VALIDATION_ERROR"
	CodeRateLimited             = "RATE_LIMITED"
	CodeOTPInvalid              = "OTP_INVALID"
	CodeOTPExpired              = "OTP_EXPIRED"
	CodeOTPMaxAttempts          = "OTP_MAX_ATTEMPTS"
	CodeOTPNotVerified          = "OTP_NOT_VERIFIED"
	CodeSIDExpired              = "SID_EXPIRED"
	CodeSIDNotFound             = "SID_NOT_FOUND"
	CodeMagicLinkExpired        = "MAGIC_LINK_EXPIRED"
	CodeMagicLinkInvalid        = "MAGIC_LINK_INVALID"
	CodeUserCreationConflict    = "USER_CREATION_CONFLICT"
	CodeProfileAlreadyCompleted = "PROFILE_ALREADY_COMPLETED"
	CodeDeliveryFailed          = "DELIVERY_FAILED"
	CodeConcurrentSessionUpdate = "CONCURRENT_UPDATE"
)

// AuthError is the closed error type returned by the OTP flow. Two AuthErrors
// match under errors.Is when their codes are equal, so a RateLimited error
// carrying a concrete RetryAfter still matches ErrRateLimited.
type AuthError struct {
	Code       string
	Kind       ErrorKind
	Message    string
	RetryAfter int64
	SID        string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Is reports whether target is an AuthError with the same code.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *AuthError) Unwrap() error { return e.Err }

// WithRetryAfter returns a copy carrying the number of seconds to wait.
func (e *AuthError) WithRetryAfter(seconds int64) *AuthError {
	c := *e
	c.RetryAfter = seconds
	return &c
}

// WithSID returns a copy bound to a session id.
func (e *AuthError) WithSID(sid string) *AuthError {
	c := *e
	c.SID = sid
	return &c
}

// WithMessage returns a copy with a more specific message.
func (e *AuthError) WithMessage(msg string) *AuthError {
	c := *e
	c.Message = msg
	return &c
}

// WithCause returns a copy wrapping the underlying error.
func (e *AuthError) WithCause(err error) *AuthError {
	c := *e
	c.Err = err
	return &c
}

func newAuthError(code string, kind ErrorKind, msg string) *AuthError {
	return &AuthError{Code: code, Kind: kind, Message: msg}
}

// Input validation errors
var (
	ErrInvalidPhoneFormat = newAuthError(CodeInvalidPhone, KindValidation, "invalid phone number")
	ErrValidation         = newAuthError(CodeValidation, KindValidation, "validation failed")
)

// Rate and flow control errors
var (
	ErrRateLimited = newAuthError(CodeRateLimited, KindRateLimit, "please wait before requesting a new code")
)

// OTP session state errors
var (
	ErrOTPInvalid       = newAuthError(CodeOTPInvalid, KindSessionState, "invalid otp code")
	ErrOTPExpired       = newAuthError(CodeOTPExpired, KindSessionState, "otp has expired")
	ErrOTPMaxAttempts   = newAuthError(CodeOTPMaxAttempts, KindSessionState, "maximum otp attempts exceeded")
	ErrOTPNotVerified   = newAuthError(CodeOTPNotVerified, KindSessionState, "otp session not verified")
	ErrSIDExpired       = newAuthError(CodeSIDExpired, KindSessionState, "otp session is no longer valid")
	ErrSIDNotFound      = newAuthError(CodeSIDNotFound, KindNotFound, "otp session not found")
	ErrConcurrentUpdate = newAuthError(CodeConcurrentSessionUpdate, KindConflict, "otp session is being updated concurrently")
)

// Magic link errors
var (
	ErrMagicLinkExpired = newAuthError(CodeMagicLinkExpired, KindSessionState, "magic link has expired")
	ErrMagicLinkInvalid = newAuthError(CodeMagicLinkInvalid, KindNotFound, "magic link is invalid")
)

// Conflict and delivery errors
var (
	ErrUserCreationConflict    = newAuthError(CodeUserCreationConflict, KindConflict, "user was created concurrently")
	ErrProfileAlreadyCompleted = newAuthError(CodeProfileAlreadyCompleted, KindConflict, "profile already completed")
	ErrDeliveryFailed          = newAuthError(CodeDeliveryFailed, KindDelivery, "failed to deliver otp")
)

// RateLimited builds the rate limit error for a cooldown that still has
// retryAfter seconds to run.
func RateLimited(retryAfter int64) *AuthError {
	return ErrRateLimited.WithRetryAfter(retryAfter)
}

// ValidationFailed builds a VALIDATION_ERROR with a field specific message.
func ValidationFailed(msg string) *AuthError {
	return ErrValidation.WithMessage(msg)
}

// AsAuthError extracts the AuthError from err, if any.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// User errors
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserInactive = errors.New("user account is inactive")
)

// Token errors
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenMalformed = errors.New("malformed token")
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session has expired")
)

// Authorization errors
var (
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrInsufficientRole = errors.New("insufficient role permissions")
)

// Policy errors
var (
	ErrPolicyExists   = errors.New("policy already exists")
	ErrPolicyNotFound = errors.New("policy not found")
	ErrPolicyInvalid  = errors.New("invalid policy")
)
