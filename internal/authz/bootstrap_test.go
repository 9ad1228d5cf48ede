package authz

import (
	"context"
	"testing"

	"github.com/adsboard-next/internal/models"
)

func TestBootstrapBuiltinRolesIdempotent(t *testing.T) {
	env := setupAuthzServiceTest(t)
	ctx := context.Background()
	if err := env.svc.BootstrapBuiltinRoles(ctx); err != nil {
		t.Fatalf("first bootstrap failed: %v", err)
	}

	var roleCount, grantCount int64
	env.db.Model(&models.Role{}).Count(&roleCount)
	env.db.Model(&models.RolePermission{}).Count(&grantCount)
	if roleCount != int64(len(BuiltinRoleSeeds())) {
		t.Fatalf("role count want %d got %d", len(BuiltinRoleSeeds()), roleCount)
	}

	if err := env.svc.BootstrapBuiltinRoles(ctx); err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}
	var roleCountAfter, grantCountAfter int64
	env.db.Model(&models.Role{}).Count(&roleCountAfter)
	env.db.Model(&models.RolePermission{}).Count(&grantCountAfter)
	if roleCountAfter != roleCount || grantCountAfter != grantCount {
		t.Fatalf("bootstrap should be idempotent: roles %d->%d grants %d->%d", roleCount, roleCountAfter, grantCount, grantCountAfter)
	}
}

func TestBootstrapBuiltinRoleMatrix(t *testing.T) {
	env := setupAuthzServiceTest(t)
	ctx := context.Background()
	if err := env.svc.BootstrapBuiltinRoles(ctx); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	super, err := env.repo.GetRoleByName("SuperAdmin")
	if err != nil || super == nil || !super.IsSuper || !super.IsSystem {
		t.Fatalf("unexpected super role: %+v err=%v", super, err)
	}
	analyst, err := env.repo.GetRoleByName("Analyst")
	if err != nil || analyst == nil {
		t.Fatalf("analyst role missing: %v", err)
	}

	cases := []struct {
		roleID uint
		module string
		action string
		want   bool
	}{
		{super.ID, "roles", "delete", true},
		{analyst.ID, "reports", "export", true},
		{analyst.ID, "campaigns", "update", false},
	}
	for _, tc := range cases {
		decision, err := env.svc.Authorize(ctx, ActorContext{UserID: 1, RoleID: tc.roleID}, tc.module, tc.action)
		if err != nil {
			t.Fatalf("authorize %s_%s failed: %v", tc.module, tc.action, err)
		}
		if decision.Allowed != tc.want {
			t.Fatalf("authorize role=%d %s_%s want %v got %v", tc.roleID, tc.module, tc.action, tc.want, decision.Allowed)
		}
	}
}
