package authz

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type authzTestEnv struct {
	db   *gorm.DB
	repo *repository.GormAuthzRepository
	svc  *Service
}

func setupAuthzServiceTest(t *testing.T) *authzTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := repository.NewAuthzRepository(db)
	svc, err := NewService(repo, repository.NewAuthzAuditLogRepository(db), Options{})
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return &authzTestEnv{db: db, repo: repo, svc: svc}
}

func (e *authzTestEnv) createRole(t *testing.T, name string, level int) *models.Role {
	t.Helper()
	role, err := e.svc.CreateRole(context.Background(), CreateRoleInput{Name: name, Level: level, PerformedBy: 1})
	if err != nil {
		t.Fatalf("create role %s failed: %v", name, err)
	}
	return role
}

func (e *authzTestEnv) grant(t *testing.T, roleID uint, module, action string) *models.Permission {
	t.Helper()
	permission, err := e.svc.EnsurePermission(context.Background(), MustKey(module, action), "")
	if err != nil {
		t.Fatalf("ensure permission failed: %v", err)
	}
	if err := e.svc.GrantPermissionToRole(context.Background(), GrantInput{RoleID: roleID, PermissionID: permission.ID, PerformedBy: 1}); err != nil {
		t.Fatalf("grant %s failed: %v", permission.Name, err)
	}
	return permission
}

// grantLegacy 直接写入历史格式权限名 {module}.{action}
func (e *authzTestEnv) grantLegacy(t *testing.T, roleID uint, module, action string) {
	t.Helper()
	mod, err := e.svc.EnsureModule(context.Background(), module, "")
	if err != nil {
		t.Fatalf("ensure module failed: %v", err)
	}
	permission := &models.Permission{Name: module + "." + action, ModuleID: mod.ID, Category: module, IsActive: true}
	if err := e.db.Create(permission).Error; err != nil {
		t.Fatalf("create legacy permission failed: %v", err)
	}
	if err := e.repo.UpsertRolePermission(roleID, permission.ID, time.Now()); err != nil {
		t.Fatalf("grant legacy permission failed: %v", err)
	}
}

func (e *authzTestEnv) countAudit(t *testing.T, action string) int64 {
	t.Helper()
	var count int64
	if err := e.db.Model(&models.AuthzAuditLog{}).Where("action = ?", action).Count(&count).Error; err != nil {
		t.Fatalf("count audit failed: %v", err)
	}
	return count
}

func TestNewServiceRequiresRepositories(t *testing.T) {
	if _, err := NewService(nil, nil, Options{}); err == nil {
		t.Fatalf("expected error for nil repository")
	}
}

func TestNewServiceDefaults(t *testing.T) {
	env := setupAuthzServiceTest(t)
	if env.svc.Policy().Level() != 10 {
		t.Fatalf("default bypass level want 10 got %d", env.svc.Policy().Level())
	}
	if env.svc.cleanupBatch != defaultCleanupBatch {
		t.Fatalf("default cleanup batch want %d got %d", defaultCleanupBatch, env.svc.cleanupBatch)
	}
}
