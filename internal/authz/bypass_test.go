package authz

import (
	"context"
	"testing"

	"github.com/adsboard-next/internal/models"
)

func TestBypassPolicyApplies(t *testing.T) {
	policy := NewBypassPolicy(10, DefaultSuperRoleNames)
	cases := []struct {
		name string
		role *models.Role
		want bool
	}{
		{"nil role", nil, false},
		{"level threshold", &models.Role{Name: "Owner", Level: 10, IsActive: true}, true},
		{"above threshold", &models.Role{Name: "Root", Level: 99, IsActive: true}, true},
		{"below threshold", &models.Role{Name: "Admin", Level: 9, IsActive: true}, false},
		{"super name", &models.Role{Name: "SuperAdmin", Level: 1, IsActive: true}, true},
		{"super name spaced", &models.Role{Name: "Super Admin", Level: 0, IsActive: true}, true},
		{"super name snake", &models.Role{Name: "super_admin", Level: 0, IsActive: true}, true},
		{"super name other casing", &models.Role{Name: "SUPERADMIN", Level: 0, IsActive: true}, true},
		{"explicit flag", &models.Role{Name: "Platform", Level: 0, IsActive: true, IsSuper: true}, true},
		{"inactive high level", &models.Role{Name: "Owner", Level: 10, IsActive: false}, false},
		{"inactive super name", &models.Role{Name: "SuperAdmin", Level: 10, IsActive: false, IsSuper: true}, false},
	}
	for _, tc := range cases {
		if got := policy.Applies(tc.role); got != tc.want {
			t.Fatalf("%s: want %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestBypassPolicyCustomLevel(t *testing.T) {
	policy := NewBypassPolicy(5, nil)
	if !policy.Applies(&models.Role{Name: "Manager", Level: 5, IsActive: true}) {
		t.Fatalf("expected bypass at custom level")
	}
	if policy.Applies(&models.Role{Name: "SuperAdmin", Level: 1, IsActive: true}) {
		t.Fatalf("empty name set should not match by name")
	}
}

func TestIsBypassedReadsRoleFresh(t *testing.T) {
	env := setupAuthzServiceTest(t)
	ctx := context.Background()
	role := env.createRole(t, "Owner", 10)

	bypassed, loaded, err := env.svc.IsBypassed(ctx, role.ID)
	if err != nil {
		t.Fatalf("is bypassed failed: %v", err)
	}
	if !bypassed || loaded == nil || loaded.ID != role.ID {
		t.Fatalf("expected bypass for level 10 role, got bypassed=%v role=%+v", bypassed, loaded)
	}

	inactive := false
	if _, err := env.svc.UpdateRole(ctx, UpdateRoleInput{RoleID: role.ID, IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate role failed: %v", err)
	}
	bypassed, _, err = env.svc.IsBypassed(ctx, role.ID)
	if err != nil {
		t.Fatalf("is bypassed failed: %v", err)
	}
	if bypassed {
		t.Fatalf("deactivated role must not bypass")
	}

	bypassed, loaded, err = env.svc.IsBypassed(ctx, 0)
	if err != nil || bypassed || loaded != nil {
		t.Fatalf("zero role should not bypass, got bypassed=%v role=%+v err=%v", bypassed, loaded, err)
	}
}
