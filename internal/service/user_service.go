package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/cache"
	"github.com/adsboard-next/internal/constants"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/repository"

	"gorm.io/gorm"
)

// CreateUserInput 创建后台用户输入
type CreateUserInput struct {
	Email         string
	Password      string
	DisplayName   string
	RoleID        uint
	RoleExpiresAt *time.Time
	PerformedBy   uint
	RequestID     string
}

// UserDetail 用户详情（含角色分配）
type UserDetail struct {
	User          *models.User                `json:"user"`
	EffectiveRole *models.Role                `json:"effective_role"`
	Assignments   []models.UserRoleAssignment `json:"assignments"`
}

// UserService 后台用户服务
type UserService struct {
	userRepo repository.UserRepository
	authzSvc *authz.Service
	authSvc  *AuthService
}

// NewUserService 创建后台用户服务
func NewUserService(userRepo repository.UserRepository, authzSvc *authz.Service, authSvc *AuthService) *UserService {
	return &UserService{
		userRepo: userRepo,
		authzSvc: authzSvc,
		authSvc:  authSvc,
	}
}

// Create 创建用户并分配初始角色
// 用户写入、USER_CREATED 审计与初始角色分配在同一事务内完成。
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if input.RoleID == 0 {
		return nil, authz.ErrRoleNotFound
	}
	if err := s.authSvc.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.WithContext(ctx).GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}
	role, err := s.authzSvc.GetRole(ctx, input.RoleID)
	if err != nil {
		return nil, err
	}
	if !role.IsActive {
		return nil, authz.ErrRoleNotFound
	}

	hash, err := s.authSvc.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		Status:       constants.UserStatusActive,
	}

	err = s.userRepo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(user); err != nil {
			return err
		}
		if err := s.authzSvc.AppendAudit(ctx, tx, authz.AuditEntry{
			UserID:      &user.ID,
			RoleID:      &role.ID,
			Action:      constants.AuditActionUserCreated,
			PerformedBy: input.PerformedBy,
			RequestID:   input.RequestID,
			Detail:      models.JSON{"email": user.Email, "initial_role": role.Name},
		}); err != nil {
			return err
		}
		_, err := s.authzSvc.AssignRoleTx(ctx, tx, authz.AssignRoleInput{
			UserID:     user.ID,
			RoleID:     role.ID,
			AssignedBy: input.PerformedBy,
			ExpiresAt:  input.RoleExpiresAt,
			RequestID:  input.RequestID,
		})
		return err
	})
	if err != nil {
		logger.Errorw("user_create_failed", "email", email, "role_id", input.RoleID, "error", err)
		return nil, err
	}
	logger.Infow("user_created",
		"user_id", user.ID,
		"role", role.Name,
		"performed_by", input.PerformedBy,
		"request_id", input.RequestID,
	)
	return user, nil
}

// Get 获取用户详情
func (s *UserService) Get(ctx context.Context, userID uint) (*UserDetail, error) {
	user, err := s.userRepo.WithContext(ctx).GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	role, err := s.authzSvc.EffectiveRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.authzSvc.ListUserAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserDetail{User: user, EffectiveRole: role, Assignments: assignments}, nil
}

// List 用户列表
func (s *UserService) List(ctx context.Context, filter repository.UserListFilter) ([]models.User, int64, error) {
	return s.userRepo.WithContext(ctx).List(filter)
}

// UpdateStatus 批量更新用户状态
func (s *UserService) UpdateStatus(ctx context.Context, userIDs []uint, status string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != constants.UserStatusActive && status != constants.UserStatusDisabled {
		return ErrInvalidUserStatus
	}
	if err := s.userRepo.WithContext(ctx).BatchUpdateStatus(userIDs, status); err != nil {
		return err
	}
	for _, id := range userIDs {
		if err := cache.DelUserAuthState(ctx, id); err != nil {
			logger.Warnw("user_auth_state_cache_del_failed", "user_id", id, "error", err)
		}
	}
	return nil
}

// AssignRole 为已存在的用户分配角色
// 授权核心不校验用户与角色是否存在，由此处负责。
func (s *UserService) AssignRole(ctx context.Context, input authz.AssignRoleInput) (*models.UserRoleAssignment, error) {
	if err := s.ensureUser(ctx, input.UserID); err != nil {
		return nil, err
	}
	role, err := s.authzSvc.GetRole(ctx, input.RoleID)
	if err != nil {
		return nil, err
	}
	if !role.IsActive {
		return nil, authz.ErrRoleNotFound
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.authzSvc.Now()) {
		return nil, fmt.Errorf("%w: expires_at must be in the future", authz.ErrInvalidInput)
	}
	return s.authzSvc.AssignRole(ctx, input)
}

// RevokeRole 撤销用户角色，返回是否实际发生变更
func (s *UserService) RevokeRole(ctx context.Context, input authz.RevokeRoleInput) (bool, error) {
	if err := s.ensureUser(ctx, input.UserID); err != nil {
		return false, err
	}
	return s.authzSvc.RevokeRole(ctx, input)
}

// ListRoles 用户的全部角色分配（含已失效）
func (s *UserService) ListRoles(ctx context.Context, userID uint) ([]models.UserRoleAssignment, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.authzSvc.ListUserAssignments(ctx, userID)
}

func (s *UserService) ensureUser(ctx context.Context, userID uint) error {
	user, err := s.userRepo.WithContext(ctx).GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	return nil
}
