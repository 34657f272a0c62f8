package services

import (
	"fmt"
	"slices"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/you/civicauth/domain"
)

// casbinEnforcer adapts *casbin.Enforcer to domain.CasbinEnforcer.
type casbinEnforcer struct {
	*casbin.Enforcer
}

// SavePolicy persists through the adapter. An enforcer without one keeps
// policies in memory only.
func (e casbinEnforcer) SavePolicy() error {
	if e.GetAdapter() == nil {
		return nil
	}
	return e.Enforcer.SavePolicy()
}

// DefaultPolicies gates the authenticated routes by role. Pending users
// reach only what they need to finish their profile.
var DefaultPolicies = [][]string{
	{domain.RolePending, "/auth/me", "GET"},
	{domain.RolePending, "/auth/profile", "POST"},
	{domain.RolePending, "/auth/logout", "POST"},
	{domain.RoleCitizen, "/auth/me", "GET"},
	{domain.RoleCitizen, "/auth/logout", "POST"},
	{domain.RoleAdmin, "/auth/me", "GET"},
	{domain.RoleAdmin, "/auth/logout", "POST"},
	{domain.RoleAdmin, "/admin/*", "(GET)|(POST)|(DELETE)"},
}

// PolicyServiceImpl implements domain.PolicyService using Casbin
type PolicyServiceImpl struct {
	enforcer domain.CasbinEnforcer
}

// NewPolicyService creates a new policy service
func NewPolicyService(enforcer *casbin.Enforcer) domain.PolicyService {
	return &PolicyServiceImpl{enforcer: casbinEnforcer{enforcer}}
}

// NewPolicyServiceWithEnforcer creates a policy service over any
// domain.CasbinEnforcer (for testing)
func NewPolicyServiceWithEnforcer(enforcer domain.CasbinEnforcer) domain.PolicyService {
	return &PolicyServiceImpl{enforcer: enforcer}
}

// normalizeRule checks a rule against the known roles and upper-cases the
// action so "get" and "GET" name the same rule.
func normalizeRule(role, resource, action string) (string, string, string, error) {
	switch role {
	case domain.RolePending, domain.RoleCitizen, domain.RoleAdmin:
	default:
		return "", "", "", fmt.Errorf("%w: unknown role %q", domain.ErrPolicyInvalid, role)
	}
	if !strings.HasPrefix(resource, "/") {
		return "", "", "", fmt.Errorf("%w: resource must be a path", domain.ErrPolicyInvalid)
	}
	action = strings.ToUpper(strings.TrimSpace(action))
	if action == "" {
		return "", "", "", fmt.Errorf("%w: action is required", domain.ErrPolicyInvalid)
	}
	return role, resource, action, nil
}

// AddPolicy implements domain.PolicyService
func (p *PolicyServiceImpl) AddPolicy(role, resource, action string) error {
	role, resource, action, err := normalizeRule(role, resource, action)
	if err != nil {
		return err
	}
	added, err := p.enforcer.AddPolicy(role, resource, action)
	if err != nil {
		return err
	}
	if !added {
		return domain.ErrPolicyExists
	}
	return p.enforcer.SavePolicy()
}

// RemovePolicy implements domain.PolicyService
func (p *PolicyServiceImpl) RemovePolicy(role, resource, action string) error {
	role, resource, action, err := normalizeRule(role, resource, action)
	if err != nil {
		return err
	}
	removed, err := p.enforcer.RemovePolicy(role, resource, action)
	if err != nil {
		return err
	}
	if !removed {
		return domain.ErrPolicyNotFound
	}
	return p.enforcer.SavePolicy()
}

// CheckPermission implements domain.PolicyService
func (p *PolicyServiceImpl) CheckPermission(role, resource, action string) (bool, error) {
	return p.enforcer.Enforce(role, resource, strings.ToUpper(action))
}

// GetPolicies implements domain.PolicyService. Rules come back ordered by
// role, then resource.
func (p *PolicyServiceImpl) GetPolicies() [][]string {
	policies, _ := p.enforcer.GetPolicy()
	policies = slices.Clone(policies)
	slices.SortFunc(policies, func(a, b []string) int {
		return slices.Compare(a, b)
	})
	return policies
}

// SeedDefaults implements domain.PolicyService. It installs DefaultPolicies
// only into an empty policy table and reports whether it did.
func (p *PolicyServiceImpl) SeedDefaults() (bool, error) {
	existing, err := p.enforcer.GetPolicy()
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	for _, rule := range DefaultPolicies {
		if _, err := p.enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
			return false, err
		}
	}
	return true, p.enforcer.SavePolicy()
}
