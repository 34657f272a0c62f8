package repositories

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/you/civicauth/domain"
)

// OTPConfig holds the policy shared by every OTPSessionStore implementation.
type OTPConfig struct {
	Length      int
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	// Retention keeps a record around after expiry so late callers get
	// SID_EXPIRED rather than SID_NOT_FOUND.
	Retention time.Duration
	// Now is the store clock; nil means time.Now.
	Now func() time.Time
}

func (c OTPConfig) withDefaults() OTPConfig {
	if c.Length <= 0 {
		c.Length = 6
	}
	if c.TTL <= 0 {
		c.TTL = 300 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Retention <= 0 {
		c.Retention = 10 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c OTPConfig) policy() domain.OTPPolicy {
	return domain.OTPPolicy{CodeLength: c.Length, MaxAttempts: c.MaxAttempts}
}

// generateSecureCode generates a cryptographically secure numeric code
func generateSecureCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		digits[i] = byte('0' + num.Int64())
	}
	return string(digits), nil
}

// newSession builds a PENDING session and the clear code it was built from.
func newSession(phone string, hasher domain.CodeHasher, cfg OTPConfig, now time.Time) (*domain.OTPSession, string, error) {
	code, err := generateSecureCode(cfg.Length)
	if err != nil {
		return nil, "", err
	}
	hash, err := hasher.Hash(code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash otp code: %w", err)
	}
	return &domain.OTPSession{
		SID:           uuid.NewString(),
		Phone:         phone,
		CodeHash:      hash,
		CreatedAt:     now,
		ExpiresAt:     now.Add(cfg.TTL),
		CooldownUntil: now.Add(cfg.Cooldown),
		Status:        domain.OTPStatusPending,
	}, code, nil
}

// newMagicToken returns a 32 byte base64url token and its storage digest.
func newMagicToken() (token, digest string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate magic link token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
