package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/cache"
	"github.com/adsboard-next/internal/config"
	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type serviceTestEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	authzSvc *authz.Service
	authSvc  *AuthService
	userSvc  *UserService
	auditSvc *AuthzAuditService
}

func setupServiceTest(t *testing.T) *serviceTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	cache.UseClient(nil, "")

	cfg := &config.Config{
		JWT: config.JWTConfig{SecretKey: "test-secret", ExpireHours: 1},
		Security: config.SecurityConfig{
			PasswordPolicy: config.PasswordPolicyConfig{MinLength: 8, RequireNumber: true},
		},
	}
	auditRepo := repository.NewAuthzAuditLogRepository(db)
	authzSvc, err := authz.NewService(repository.NewAuthzRepository(db), auditRepo, authz.Options{})
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	userRepo := repository.NewUserRepository(db)
	authSvc := NewAuthService(cfg, userRepo)
	return &serviceTestEnv{
		db:       db,
		cfg:      cfg,
		authzSvc: authzSvc,
		authSvc:  authSvc,
		userSvc:  NewUserService(userRepo, authzSvc, authSvc),
		auditSvc: NewAuthzAuditService(auditRepo),
	}
}

func (e *serviceTestEnv) createRole(t *testing.T, name string, level int) *models.Role {
	t.Helper()
	role, err := e.authzSvc.CreateRole(context.Background(), authz.CreateRoleInput{Name: name, Level: level, PerformedBy: 1})
	if err != nil {
		t.Fatalf("create role %s failed: %v", name, err)
	}
	return role
}

func (e *serviceTestEnv) createUser(t *testing.T, email string, roleID uint) *models.User {
	t.Helper()
	user, err := e.userSvc.Create(context.Background(), CreateUserInput{
		Email:       email,
		Password:    "password123",
		RoleID:      roleID,
		PerformedBy: 1,
		RequestID:   "req-" + email,
	})
	if err != nil {
		t.Fatalf("create user %s failed: %v", email, err)
	}
	return user
}
