package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adsboard-next/internal/repository"
)

func TestAuthorizeAnalystScenario(t *testing.T) {
	env := setupAuthzServiceTest(t)
	ctx := context.Background()
	analyst := env.createRole(t, "Analyst", 3)
	env.grant(t, analyst.ID, "reports", "read")
	if _, err := env.svc.EnsurePermission(ctx, MustKey("campaigns", "read"), ""); err != nil {
		t.Fatalf("ensure campaigns permission failed: %v", err)
	}
	actor := ActorContext{UserID: 5, Username: "analyst@example.com", RoleID: analyst.ID}

	decision, err := env.svc.Authorize(ctx, actor, "reports", "read")
	if err != nil {
		t.Fatalf("authorize reports_read failed: %v", err)
	}
	if !decision.Allowed || decision.Bypassed || decision.GrantedPermission != "reports_read" || decision.RoleLevel != 3 {
		t.Fatalf("unexpected allow decision: %+v", decision)
	}

	decision, err = env.svc.Authorize(ctx, actor, "reports", "delete")
	if err != nil {
		t.Fatalf("authorize reports_delete failed: %v", err)
	}
	if decision.Allowed || decision.Denial == nil {
		t.Fatalf("expected deny, got %+v", decision)
	}
	if got := decision.Denial.AvailableActions; len(got) != 1 || got[0] != "read" {
		t.Fatalf("available actions want [read] got %v", got)
	}
	if decision.Denial.UserRole != "Analyst" || decision.Denial.RequiredPermission != "reports_delete" {
		t.Fatalf("unexpected denial: %+v", decision.Denial)
	}
	if decision.Denial.Module != "reports" || decision.Denial.Action != "delete" || decision.Denial.Suggestion == "" {
		t.Fatalf("denial should carry remediation detail: %+v", decision.Denial)
	}
	var deny *DenyError
	if err := decision.Err(); !errors.As(err, &deny) || !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected DenyError, got %v", err)
	}

	decision, err = env.svc.Authorize(ctx, actor, "campaigns", "read")
	if err != nil {
		t.Fatalf("authorize campaigns_read failed: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected deny for campaigns_read")
	}
	if got := decision.Denial.AvailableActions; got == nil || len(got) != 0 {
		t.Fatalf("available actions want [] got %v", got)
	}
}

func TestAuthorizeOwnerBypassWithoutGrants(t *testing.T) {
	env := setupAuthzServiceTest(t)
	owner := env.createRole(t, "Owner", 10)
	actor := ActorContext{UserID: 1, RoleID: owner.ID}

	for _, pair := range [][2]string{{"users", "delete"}, {"billing", "purge"}, {"reports", "export"}} {
		decision, err := env.svc.Authorize(context.Background(), actor, pair[0], pair[1])
		if err != nil {
			t.Fatalf("authorize %v failed: %v", pair, err)
		}
		if !decision.Allowed || !decision.Bypassed || decision.GrantedPermission != BypassMarker {
			t.Fatalf("expected bypass allow for %v, got %+v", pair, decision)
		}
	}
}

func TestAuthorizeSuperNameBypass(t *testing.T) {
	env := setupAuthzServiceTest(t)
	role := env.createRole(t, "super_admin", 1)
	decision, err := env.svc.Authorize(context.Background(), ActorContext{UserID: 9, RoleID: role.ID}, "roles", "delete")
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if !decision.Bypassed {
		t.Fatalf("expected name-based bypass, got %+v", decision)
	}
}

func TestAuthorizeAcceptsLegacyPermissionName(t *testing.T) {
	env := setupAuthzServiceTest(t)
	role := env.createRole(t, "Manager", 5)
	env.grantLegacy(t, role.ID, "campaigns", "update")

	decision, err := env.svc.Authorize(context.Background(), ActorContext{UserID: 3, RoleID: role.ID}, "campaigns", "update")
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if !decision.Allowed || decision.GrantedPermission != "campaigns.update" {
		t.Fatalf("expected allow via legacy name, got %+v", decision)
	}

	decision, err = env.svc.Authorize(context.Background(), ActorContext{UserID: 3, RoleID: role.ID}, "campaigns", "delete")
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if got := decision.Denial.AvailableActions; len(got) != 1 || got[0] != "update" {
		t.Fatalf("legacy grant should appear in available actions, got %v", got)
	}
}

func TestAuthorizeDisabledPermissionDenies(t *testing.T) {
	env := setupAuthzServiceTest(t)
	ctx := context.Background()
	role := env.createRole(t, "Analyst", 3)
	permission := env.grant(t, role.ID, "reports", "export")
	if err := env.svc.SetPermissionActive(ctx, permission.ID, false); err != nil {
		t.Fatalf("disable permission failed: %v", err)
	}
	decision, err := env.svc.Authorize(ctx, ActorContext{UserID: 2, RoleID: role.ID}, "reports", "export")
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("disabled permission must deny")
	}
}

func TestAuthorizeUnauthenticated(t *testing.T) {
	env := setupAuthzServiceTest(t)
	_, err := env.svc.Authorize(context.Background(), ActorContext{RoleID: 1}, "reports", "read")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated got %v", err)
	}
}

func TestAuthorizeWithoutRoleDenies(t *testing.T) {
	env := setupAuthzServiceTest(t)
	decision, err := env.svc.Authorize(context.Background(), ActorContext{UserID: 4}, "reports", "read")
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if decision.Allowed || decision.Denial == nil || decision.Denial.UserRole != noRoleName {
		t.Fatalf("expected deny without role, got %+v", decision)
	}
}

func TestAuthorizeInvalidKey(t *testing.T) {
	env := setupAuthzServiceTest(t)
	_, err := env.svc.Authorize(context.Background(), ActorContext{UserID: 4}, "reports", "")
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("want ErrInvalidKey got %v", err)
	}
}

func TestAuthorizeStoreFailureIsResolutionError(t *testing.T) {
	env := setupAuthzServiceTest(t)
	role := env.createRole(t, "Analyst", 3)
	sqlDB, err := env.db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	_ = sqlDB.Close()

	decision, err := env.svc.Authorize(context.Background(), ActorContext{UserID: 5, RoleID: role.ID}, "reports", "read")
	if decision != nil {
		t.Fatalf("store failure must not produce a decision, got %+v", decision)
	}
	if !errors.Is(err, ErrResolutionFailed) {
		t.Fatalf("want ErrResolutionFailed got %v", err)
	}
	var resolutionErr *ResolutionError
	if !errors.As(err, &resolutionErr) || resolutionErr.Op == "" {
		t.Fatalf("want ResolutionError with op, got %v", err)
	}
}

func TestAuthorizeCanceledContextIsResolutionError(t *testing.T) {
	env := setupAuthzServiceTest(t)
	role := env.createRole(t, "Analyst", 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.Authorize(ctx, ActorContext{UserID: 5, RoleID: role.ID}, "reports", "read")
	if !errors.Is(err, ErrResolutionFailed) {
		t.Fatalf("want ErrResolutionFailed got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("resolution error should keep the cause, got %v", err)
	}
}

type failingDiagnosticRepo struct {
	repository.AuthzRepository
}

func (r failingDiagnosticRepo) WithContext(ctx context.Context) repository.AuthzRepository {
	return failingDiagnosticRepo{AuthzRepository: r.AuthzRepository.WithContext(ctx)}
}

func (r failingDiagnosticRepo) ListActiveGrantNamesByModule(uint, string) ([]string, error) {
	return nil, errors.New("diagnostic query exploded")
}

func TestAuthorizeDiagnosticFailureDegrades(t *testing.T) {
	env := setupAuthzServiceTest(t)
	role := env.createRole(t, "Analyst", 3)
	env.grant(t, role.ID, "reports", "read")

	svc, err := NewService(failingDiagnosticRepo{AuthzRepository: env.repo}, repository.NewAuthzAuditLogRepository(env.db), Options{})
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	decision, err := svc.Authorize(context.Background(), ActorContext{UserID: 5, RoleID: role.ID}, "reports", "delete")
	if err != nil {
		t.Fatalf("diagnostic failure must not fail the decision: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected deny")
	}
	if got := decision.Denial.AvailableActions; got == nil || len(got) != 0 {
		t.Fatalf("available actions should degrade to empty, got %v", got)
	}
}

func TestResolveActorPicksHighestEffectiveRole(t *testing.T) {
	env := setupAuthzServiceTest(t)
	ctx := context.Background()
	viewer := env.createRole(t, "Viewer", 1)
	manager := env.createRole(t, "Manager", 5)
	owner := env.createRole(t, "Owner", 10)

	yesterday := time.Now().Add(-24 * time.Hour)
	for _, input := range []AssignRoleInput{
		{UserID: 5, RoleID: viewer.ID, AssignedBy: 1},
		{UserID: 5, RoleID: manager.ID, AssignedBy: 1},
		{UserID: 5, RoleID: owner.ID, AssignedBy: 1, ExpiresAt: &yesterday},
	} {
		if _, err := env.svc.AssignRole(ctx, input); err != nil {
			t.Fatalf("assign failed: %v", err)
		}
	}

	actor, err := env.svc.ResolveActor(ctx, 5, "user5")
	if err != nil {
		t.Fatalf("resolve actor failed: %v", err)
	}
	if actor.RoleID != manager.ID || actor.Username != "user5" {
		t.Fatalf("expected manager as effective role, got %+v", actor)
	}

	if _, err := env.svc.ResolveActor(ctx, 0, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated got %v", err)
	}
}

func TestExpiredAssignmentScenario(t *testing.T) {
	env := setupAuthzServiceTest(t)
	ctx := context.Background()
	env.createRole(t, "Viewer", 1)
	role := env.createRole(t, "Analyst", 3)
	env.grant(t, role.ID, "reports", "read")

	yesterday := time.Now().Add(-24 * time.Hour)
	if _, err := env.svc.AssignRole(ctx, AssignRoleInput{UserID: 5, RoleID: role.ID, AssignedBy: 1, ExpiresAt: &yesterday}); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	actor, err := env.svc.ResolveActor(ctx, 5, "")
	if err != nil {
		t.Fatalf("resolve actor failed: %v", err)
	}
	if actor.RoleID != 0 {
		t.Fatalf("expired assignment must not yield a role, got %d", actor.RoleID)
	}
	decision, err := env.svc.Authorize(ctx, actor, "reports", "read")
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expired assignment must not grant access")
	}
}

func TestExpiryComparesInstantsAcrossZones(t *testing.T) {
	env := setupAuthzServiceTest(t)
	ctx := context.Background()
	role := env.createRole(t, "Analyst", 3)
	env.grant(t, role.ID, "reports", "read")

	east := time.FixedZone("UTC+8", 8*3600)
	west := time.FixedZone("UTC-8", -8*3600)
	expired := time.Now().Add(-3 * time.Hour).In(east)
	future := time.Now().Add(3 * time.Hour).In(west)
	if _, err := env.svc.AssignRole(ctx, AssignRoleInput{UserID: 5, RoleID: role.ID, AssignedBy: 1, ExpiresAt: &expired}); err != nil {
		t.Fatalf("assign expired failed: %v", err)
	}
	if _, err := env.svc.AssignRole(ctx, AssignRoleInput{UserID: 6, RoleID: role.ID, AssignedBy: 1, ExpiresAt: &future}); err != nil {
		t.Fatalf("assign future failed: %v", err)
	}

	actor, err := env.svc.ResolveActor(ctx, 5, "")
	if err != nil {
		t.Fatalf("resolve actor failed: %v", err)
	}
	if actor.RoleID != 0 {
		t.Fatalf("assignment expired in +08:00 must not be effective, got role %d", actor.RoleID)
	}
	decision, err := env.svc.Authorize(ctx, ActorContext{UserID: 5, RoleID: actor.RoleID}, "reports", "read")
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expired assignment must not grant access")
	}

	actor, err = env.svc.ResolveActor(ctx, 6, "")
	if err != nil {
		t.Fatalf("resolve actor failed: %v", err)
	}
	if actor.RoleID != role.ID {
		t.Fatalf("assignment valid in -08:00 must stay effective, got role %d", actor.RoleID)
	}

	result, err := env.svc.CleanupExpired(ctx, "test")
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Expired != 1 {
		t.Fatalf("cleanup should expire exactly one assignment, got %d", result.Expired)
	}
	stored, err := env.repo.GetAssignment(6, role.ID)
	if err != nil || stored == nil || !stored.IsActive {
		t.Fatalf("future assignment must survive cleanup, got %+v err=%v", stored, err)
	}
}

func TestAuthorizeFreeFormActions(t *testing.T) {
	env := setupAuthzServiceTest(t)
	ctx := context.Background()
	owner := env.createRole(t, "Owner", 10)
	analyst := env.createRole(t, "Analyst", 3)
	env.grant(t, analyst.ID, "reports", "export.csv")

	for _, action := range []string{"export.csv", "bulk edit", "approve:final"} {
		decision, err := env.svc.Authorize(ctx, ActorContext{UserID: 1, RoleID: owner.ID}, "reports", action)
		if err != nil {
			t.Fatalf("owner authorize %q failed: %v", action, err)
		}
		if !decision.Allowed || !decision.Bypassed {
			t.Fatalf("owner should bypass %q, got %+v", action, decision)
		}
	}

	decision, err := env.svc.Authorize(ctx, ActorContext{UserID: 2, RoleID: analyst.ID}, "reports", "export.csv")
	if err != nil {
		t.Fatalf("analyst authorize failed: %v", err)
	}
	if !decision.Allowed || decision.GrantedPermission != "reports_export.csv" {
		t.Fatalf("expected allow via reports_export.csv, got %+v", decision)
	}

	outcome, err := env.svc.RequireAll(ctx, ActorContext{UserID: 1, RoleID: owner.ID}, []PermissionKey{{Module: "reports", Action: "bulk edit"}})
	if err != nil || !outcome.Allowed {
		t.Fatalf("owner require all should bypass, got %+v err=%v", outcome, err)
	}
}
