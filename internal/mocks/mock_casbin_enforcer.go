package mocks

import (
	"slices"

	"github.com/you/civicauth/domain"
)

// MockCasbinEnforcer implements domain.CasbinEnforcer over an in-memory rule
// list with exact-match enforcement.
type MockCasbinEnforcer struct {
	AddPolicyFunc    func(params ...interface{}) (bool, error)
	RemovePolicyFunc func(params ...interface{}) (bool, error)
	EnforceFunc      func(rvals ...interface{}) (bool, error)
	GetPolicyFunc    func() ([][]string, error)
	SavePolicyFunc   func() error

	policies [][]string
	saves    int
}

// Compile-time interface compliance verification
var _ domain.CasbinEnforcer = (*MockCasbinEnforcer)(nil)

// NewMockCasbinEnforcer creates a MockCasbinEnforcer holding a small rule set
func NewMockCasbinEnforcer() *MockCasbinEnforcer {
	return &MockCasbinEnforcer{
		policies: [][]string{
			{domain.RolePending, "/auth/profile", "POST"},
			{domain.RoleCitizen, "/auth/me", "GET"},
		},
	}
}

func toRule(params []interface{}) []string {
	rule := make([]string, 0, len(params))
	for _, p := range params {
		s, _ := p.(string)
		rule = append(rule, s)
	}
	return rule
}

func (m *MockCasbinEnforcer) index(rule []string) int {
	return slices.IndexFunc(m.policies, func(p []string) bool { return slices.Equal(p, rule) })
}

// AddPolicy appends the rule unless it is already present
func (m *MockCasbinEnforcer) AddPolicy(params ...interface{}) (bool, error) {
	if m.AddPolicyFunc != nil {
		return m.AddPolicyFunc(params...)
	}
	rule := toRule(params)
	if m.index(rule) >= 0 {
		return false, nil
	}
	m.policies = append(m.policies, rule)
	return true, nil
}

// RemovePolicy drops the rule and reports whether it was present
func (m *MockCasbinEnforcer) RemovePolicy(params ...interface{}) (bool, error) {
	if m.RemovePolicyFunc != nil {
		return m.RemovePolicyFunc(params...)
	}
	i := m.index(toRule(params))
	if i < 0 {
		return false, nil
	}
	m.policies = slices.Delete(m.policies, i, i+1)
	return true, nil
}

// Enforce allows a request only when a rule matches it exactly
func (m *MockCasbinEnforcer) Enforce(rvals ...interface{}) (bool, error) {
	if m.EnforceFunc != nil {
		return m.EnforceFunc(rvals...)
	}
	return m.index(toRule(rvals)) >= 0, nil
}

// GetPolicy returns a copy of the rules
func (m *MockCasbinEnforcer) GetPolicy() ([][]string, error) {
	if m.GetPolicyFunc != nil {
		return m.GetPolicyFunc()
	}
	out := make([][]string, len(m.policies))
	for i, p := range m.policies {
		out[i] = slices.Clone(p)
	}
	return out, nil
}

// SavePolicy counts the call
func (m *MockCasbinEnforcer) SavePolicy() error {
	if m.SavePolicyFunc != nil {
		return m.SavePolicyFunc()
	}
	m.saves++
	return nil
}

// Saves returns how many times SavePolicy succeeded through the default path
func (m *MockCasbinEnforcer) Saves() int { return m.saves }

// SetPolicies replaces the rules (test helper)
func (m *MockCasbinEnforcer) SetPolicies(policies [][]string) {
	m.policies = make([][]string, 0, len(policies))
	for _, p := range policies {
		m.policies = append(m.policies, slices.Clone(p))
	}
}
