package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptCodeHasher(t *testing.T) {
	h := NewCodeHasher(bcrypt.MinCost)

	hash, err := h.Hash("123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "123456" {
		t.Fatal("hash must not be the clear code")
	}

	if !h.Verify(hash, "123456") {
		t.Error("expected the right code to verify")
	}
	if h.Verify(hash, "654321") {
		t.Error("expected a wrong code to fail")
	}
	if h.Verify("not-a-hash", "123456") {
		t.Error("expected a malformed hash to fail")
	}
}

func TestNewCodeHasher_Cost(t *testing.T) {
	tests := []struct {
		name     string
		cost     int
		expected int
	}{
		{"min cost kept", bcrypt.MinCost, bcrypt.MinCost},
		{"default kept", 10, 10},
		{"zero falls back", 0, bcrypt.DefaultCost},
		{"too high falls back", bcrypt.MaxCost + 1, bcrypt.DefaultCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewCodeHasher(tt.cost).cost; got != tt.expected {
				t.Errorf("expected cost %d, got %d", tt.expected, got)
			}
		})
	}
}
