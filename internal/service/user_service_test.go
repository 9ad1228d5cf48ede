package service

import (
	"context"
	"errors"
	"testing"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/constants"
	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/repository"
)

func TestUserServiceCreateAssignsInitialRole(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	role := env.createRole(t, "Analyst", 3)

	user := env.createUser(t, " Analyst@Example.com ", role.ID)
	if user.Email != "analyst@example.com" {
		t.Fatalf("email should be normalized, got %s", user.Email)
	}

	effective, err := env.authzSvc.EffectiveRole(ctx, user.ID)
	if err != nil {
		t.Fatalf("effective role failed: %v", err)
	}
	if effective == nil || effective.ID != role.ID {
		t.Fatalf("effective role want %d got %+v", role.ID, effective)
	}

	logs, total, err := env.auditSvc.ListForAdmin(ctx, repository.AuthzAuditLogListFilter{
		UserID: user.ID,
	})
	if err != nil {
		t.Fatalf("list audit failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("audit rows want 2 got %d", total)
	}
	actions := map[string]bool{}
	for _, item := range logs {
		actions[item.Action] = true
		if item.RequestID != "req- Analyst@Example.com" {
			t.Fatalf("request id should be shared and trimmed, got %q", item.RequestID)
		}
	}
	if !actions[constants.AuditActionUserCreated] || !actions[constants.AuditActionRoleAssign] {
		t.Fatalf("expected USER_CREATED and ROLE_ASSIGN, got %v", actions)
	}
}

func TestUserServiceCreateRejectsInvalidInput(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	role := env.createRole(t, "Viewer", 1)
	env.createUser(t, "dup@example.com", role.ID)

	cases := []struct {
		name  string
		input CreateUserInput
		want  error
	}{
		{name: "bad email", input: CreateUserInput{Email: "nope", Password: "password123", RoleID: role.ID}, want: ErrInvalidEmail},
		{name: "weak password", input: CreateUserInput{Email: "weak@example.com", Password: "short", RoleID: role.ID}, want: ErrWeakPassword},
		{name: "duplicate email", input: CreateUserInput{Email: "DUP@example.com", Password: "password123", RoleID: role.ID}, want: ErrEmailExists},
		{name: "missing role", input: CreateUserInput{Email: "norole@example.com", Password: "password123", RoleID: 999}, want: authz.ErrRoleNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.userSvc.Create(ctx, tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v got %v", tc.want, err)
			}
		})
	}
}

func TestUserServiceCreateRollsBackWhenAuditFails(t *testing.T) {
	env := setupServiceTest(t)
	role := env.createRole(t, "Manager", 5)

	if err := env.db.Migrator().DropTable(&models.AuthzAuditLog{}); err != nil {
		t.Fatalf("drop audit table failed: %v", err)
	}
	_, err := env.userSvc.Create(context.Background(), CreateUserInput{
		Email:    "rollback@example.com",
		Password: "password123",
		RoleID:   role.ID,
	})
	if err == nil {
		t.Fatalf("expected create to fail when audit cannot be written")
	}

	var users int64
	if err := env.db.Model(&models.User{}).Where("email = ?", "rollback@example.com").Count(&users).Error; err != nil {
		t.Fatalf("count users failed: %v", err)
	}
	var assignments int64
	if err := env.db.Model(&models.UserRoleAssignment{}).Count(&assignments).Error; err != nil {
		t.Fatalf("count assignments failed: %v", err)
	}
	if users != 0 || assignments != 0 {
		t.Fatalf("transaction should roll back, users=%d assignments=%d", users, assignments)
	}
}

func TestUserServiceGetAndDisable(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	role := env.createRole(t, "Viewer", 1)
	user := env.createUser(t, "viewer@example.com", role.ID)

	detail, err := env.userSvc.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user failed: %v", err)
	}
	if detail.EffectiveRole == nil || detail.EffectiveRole.Name != "Viewer" || len(detail.Assignments) != 1 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	if err := env.userSvc.UpdateStatus(ctx, []uint{user.ID}, "paused"); !errors.Is(err, ErrInvalidUserStatus) {
		t.Fatalf("want ErrInvalidUserStatus got %v", err)
	}
	if err := env.userSvc.UpdateStatus(ctx, []uint{user.ID}, constants.UserStatusDisabled); err != nil {
		t.Fatalf("disable user failed: %v", err)
	}
	if _, _, _, err := env.authSvc.Login(ctx, "viewer@example.com", "password123"); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("disabled user login want ErrUserDisabled got %v", err)
	}

	if _, err := env.userSvc.Get(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user want ErrNotFound got %v", err)
	}
}
