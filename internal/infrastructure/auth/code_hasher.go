package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptCodeHasher implements domain.CodeHasher
type BcryptCodeHasher struct {
	cost int
}

// NewCodeHasher creates a bcrypt backed code hasher. A cost outside the
// bcrypt range falls back to bcrypt.DefaultCost.
func NewCodeHasher(cost int) *BcryptCodeHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptCodeHasher{cost: cost}
}

// Hash implements domain.CodeHasher
func (h *BcryptCodeHasher) Hash(code string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// Verify implements domain.CodeHasher
func (h *BcryptCodeHasher) Verify(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
