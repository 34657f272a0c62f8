package services

import (
	"errors"
	"testing"

	"github.com/you/civicauth/domain"
	"github.com/you/civicauth/internal/infrastructure/auth"
	"github.com/you/civicauth/internal/mocks"
)

// createPolicyServiceForTest creates a PolicyService with mock Casbin enforcer
func createPolicyServiceForTest(t *testing.T) (domain.PolicyService, *mocks.MockCasbinEnforcer) {
	t.Helper()
	enforcer := mocks.NewMockCasbinEnforcer()
	return NewPolicyServiceWithEnforcer(enforcer), enforcer
}

func TestPolicyServiceImpl_AddPolicy(t *testing.T) {
	boom := errors.New("adapter down")

	tests := []struct {
		name        string
		role        string
		resource    string
		action      string
		setupMock   func(*mocks.MockCasbinEnforcer)
		expectedErr error
		wantSaves   int
	}{
		{
			name:      "new rule is saved",
			role:      domain.RoleCitizen,
			resource:  "/auth/profile",
			action:    "POST",
			wantSaves: 1,
		},
		{
			name:      "action is upper-cased",
			role:      domain.RoleAdmin,
			resource:  "/admin/audit",
			action:    "get",
			wantSaves: 1,
		},
		{
			name:        "duplicate rule",
			role:        domain.RoleCitizen,
			resource:    "/auth/me",
			action:      "get",
			expectedErr: domain.ErrPolicyExists,
		},
		{
			name:        "unknown role",
			role:        "superuser",
			resource:    "/auth/me",
			action:      "GET",
			expectedErr: domain.ErrPolicyInvalid,
		},
		{
			name:        "resource is not a path",
			role:        domain.RoleAdmin,
			resource:    "admin",
			action:      "GET",
			expectedErr: domain.ErrPolicyInvalid,
		},
		{
			name:        "blank action",
			role:        domain.RoleAdmin,
			resource:    "/admin/*",
			action:      "  ",
			expectedErr: domain.ErrPolicyInvalid,
		},
		{
			name:     "enforcer failure",
			role:     domain.RoleAdmin,
			resource: "/admin/*",
			action:   "GET",
			setupMock: func(m *mocks.MockCasbinEnforcer) {
				m.AddPolicyFunc = func(params ...interface{}) (bool, error) { return false, boom }
			},
			expectedErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policyService, mockEnforcer := createPolicyServiceForTest(t)
			if tt.setupMock != nil {
				tt.setupMock(mockEnforcer)
			}

			err := policyService.AddPolicy(tt.role, tt.resource, tt.action)
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("expected %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := mockEnforcer.Saves(); got != tt.wantSaves {
				t.Errorf("expected %d saves, got %d", tt.wantSaves, got)
			}
		})
	}
}

func TestPolicyServiceImpl_RemovePolicy(t *testing.T) {
	t.Run("existing rule", func(t *testing.T) {
		policyService, mockEnforcer := createPolicyServiceForTest(t)
		if err := policyService.RemovePolicy(domain.RolePending, "/auth/profile", "post"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if mockEnforcer.Saves() != 1 {
			t.Error("expected SavePolicy after removal")
		}
		if ok, _ := policyService.CheckPermission(domain.RolePending, "/auth/profile", "POST"); ok {
			t.Error("expected permission to be gone")
		}
	})

	t.Run("missing rule", func(t *testing.T) {
		policyService, mockEnforcer := createPolicyServiceForTest(t)
		err := policyService.RemovePolicy(domain.RoleAdmin, "/nowhere", "GET")
		if !errors.Is(err, domain.ErrPolicyNotFound) {
			t.Fatalf("expected ErrPolicyNotFound, got %v", err)
		}
		if mockEnforcer.Saves() != 0 {
			t.Error("SavePolicy must not run when nothing changed")
		}
	})

	t.Run("save failure", func(t *testing.T) {
		policyService, mockEnforcer := createPolicyServiceForTest(t)
		boom := errors.New("write failed")
		mockEnforcer.SavePolicyFunc = func() error { return boom }
		if err := policyService.RemovePolicy(domain.RoleCitizen, "/auth/me", "GET"); !errors.Is(err, boom) {
			t.Fatalf("expected %v, got %v", boom, err)
		}
	})
}

func TestPolicyServiceImpl_CheckPermission(t *testing.T) {
	policyService, mockEnforcer := createPolicyServiceForTest(t)

	tests := []struct {
		role, resource, action string
		allowed                bool
	}{
		{domain.RolePending, "/auth/profile", "POST", true},
		{domain.RolePending, "/auth/profile", "post", true},
		{domain.RolePending, "/auth/me", "GET", false},
		{domain.RoleCitizen, "/auth/me", "GET", true},
		{"", "/auth/me", "GET", false},
	}
	for _, tt := range tests {
		ok, err := policyService.CheckPermission(tt.role, tt.resource, tt.action)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok != tt.allowed {
			t.Errorf("%q %s %s: expected %t, got %t", tt.role, tt.action, tt.resource, tt.allowed, ok)
		}
	}

	boom := errors.New("model broken")
	mockEnforcer.EnforceFunc = func(rvals ...interface{}) (bool, error) { return false, boom }
	if _, err := policyService.CheckPermission(domain.RoleAdmin, "/admin/x", "GET"); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
}

func TestPolicyServiceImpl_GetPolicies(t *testing.T) {
	policyService, mockEnforcer := createPolicyServiceForTest(t)
	mockEnforcer.SetPolicies([][]string{
		{domain.RolePending, "/auth/me", "GET"},
		{domain.RoleAdmin, "/admin/*", "GET"},
		{domain.RoleCitizen, "/auth/me", "GET"},
	})

	got := policyService.GetPolicies()
	want := []string{domain.RoleAdmin, domain.RoleCitizen, domain.RolePending}
	if len(got) != len(want) {
		t.Fatalf("expected %d policies, got %d", len(want), len(got))
	}
	for i, role := range want {
		if got[i][0] != role {
			t.Errorf("policy %d: expected role %s, got %s", i, role, got[i][0])
		}
	}

	mockEnforcer.GetPolicyFunc = func() ([][]string, error) { return nil, errors.New("down") }
	if got := policyService.GetPolicies(); len(got) != 0 {
		t.Errorf("expected no policies on error, got %v", got)
	}
}

func TestPolicyServiceImpl_SeedDefaults(t *testing.T) {
	t.Run("seeds an empty table", func(t *testing.T) {
		policyService, mockEnforcer := createPolicyServiceForTest(t)
		mockEnforcer.SetPolicies(nil)
		saved := false
		mockEnforcer.SavePolicyFunc = func() error {
			saved = true
			return nil
		}

		seeded, err := policyService.SeedDefaults()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !seeded {
			t.Error("expected defaults to be seeded")
		}
		if !saved {
			t.Error("expected SavePolicy to be called")
		}
		if got := len(policyService.GetPolicies()); got != len(DefaultPolicies) {
			t.Errorf("expected %d policies, got %d", len(DefaultPolicies), got)
		}
	})

	t.Run("leaves existing policies alone", func(t *testing.T) {
		policyService, mockEnforcer := createPolicyServiceForTest(t)
		mockEnforcer.SetPolicies([][]string{{domain.RoleAdmin, "/admin/*", "GET"}})
		mockEnforcer.AddPolicyFunc = func(params ...interface{}) (bool, error) {
			t.Error("AddPolicy must not be called")
			return false, nil
		}

		seeded, err := policyService.SeedDefaults()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seeded {
			t.Error("expected no seeding over existing policies")
		}
	})

	t.Run("add failure aborts", func(t *testing.T) {
		policyService, mockEnforcer := createPolicyServiceForTest(t)
		mockEnforcer.SetPolicies(nil)
		boom := errors.New("adapter down")
		mockEnforcer.AddPolicyFunc = func(params ...interface{}) (bool, error) {
			return false, boom
		}

		if _, err := policyService.SeedDefaults(); !errors.Is(err, boom) {
			t.Errorf("expected %v, got %v", boom, err)
		}
	})
}

// The default policies evaluated by a real enforcer over the route model.
func TestDefaultPolicies_Enforced(t *testing.T) {
	casbinSvc, err := auth.NewCasbinServiceWithAdapter(mustDefaultModel(t), nil)
	if err != nil {
		t.Fatalf("failed to build enforcer: %v", err)
	}
	policyService := NewPolicyService(casbinSvc.E)
	if _, err := policyService.SeedDefaults(); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	tests := []struct {
		role, resource, action string
		allowed                bool
	}{
		{domain.RolePending, "/auth/profile", "POST", true},
		{domain.RolePending, "/auth/me", "GET", true},
		{domain.RolePending, "/admin/policies", "GET", false},
		{domain.RoleCitizen, "/auth/me", "GET", true},
		{domain.RoleCitizen, "/auth/profile", "POST", false},
		{domain.RoleAdmin, "/admin/policies", "POST", true},
		{domain.RoleAdmin, "/admin/policies", "PUT", false},
	}
	for _, tt := range tests {
		ok, err := policyService.CheckPermission(tt.role, tt.resource, tt.action)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok != tt.allowed {
			t.Errorf("%s %s %s: expected %t, got %t", tt.role, tt.action, tt.resource, tt.allowed, ok)
		}
	}
}
