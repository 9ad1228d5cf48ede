package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adsboard-next/internal/constants"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/repository"

	"gorm.io/gorm"
)

// AssignRoleInput 分配角色输入
// 用户与角色是否存在由调用方负责校验。
type AssignRoleInput struct {
	UserID     uint
	RoleID     uint
	AssignedBy uint
	ExpiresAt  *time.Time
	RequestID  string
}

// RevokeRoleInput 撤销角色输入
type RevokeRoleInput struct {
	UserID    uint
	RoleID    uint
	RevokedBy uint
	RequestID string
}

// GrantInput 授权/撤销授权输入
type GrantInput struct {
	RoleID       uint
	PermissionID uint
	PerformedBy  uint
	RequestID    string
}

// CleanupResult 过期分配清理结果
type CleanupResult struct {
	Expired int `json:"expired"`
	Batches int `json:"batches"`
}

// AssignRole 分配角色（同一用户角色重复分配时刷新分配信息）
func (s *Service) AssignRole(ctx context.Context, input AssignRoleInput) (*models.UserRoleAssignment, error) {
	var assignment *models.UserRoleAssignment
	err := s.repo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		assignment, err = s.AssignRoleTx(ctx, tx, input)
		return err
	})
	if err != nil {
		logger.Errorw("authz_role_assign_failed", "user_id", input.UserID, "role_id", input.RoleID, "error", err)
		return nil, err
	}
	logger.Infow("authz_role_assigned",
		"user_id", input.UserID,
		"role_id", input.RoleID,
		"assigned_by", input.AssignedBy,
		"expires_at", input.ExpiresAt,
		"request_id", input.RequestID,
	)
	return assignment, nil
}

// AssignRoleTx 在调用方事务内分配角色并追加审计
func (s *Service) AssignRoleTx(ctx context.Context, tx *gorm.DB, input AssignRoleInput) (*models.UserRoleAssignment, error) {
	if input.UserID == 0 || input.RoleID == 0 {
		return nil, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	now := s.now()
	var expiresAt *time.Time
	if input.ExpiresAt != nil {
		utc := input.ExpiresAt.UTC()
		expiresAt = &utc
	}
	assignment := &models.UserRoleAssignment{
		UserID:     input.UserID,
		RoleID:     input.RoleID,
		AssignedBy: input.AssignedBy,
		AssignedAt: now,
		ExpiresAt:  expiresAt,
		IsActive:   true,
	}
	if err := s.repo.WithTx(tx).UpsertAssignment(assignment); err != nil {
		return nil, err
	}
	detail := models.JSON{"assignment_id": assignment.ID}
	if expiresAt != nil {
		detail["expires_at"] = expiresAt.Format(time.RFC3339)
	}
	if err := s.AppendAudit(ctx, tx, AuditEntry{
		UserID:      uintPtr(input.UserID),
		RoleID:      uintPtr(input.RoleID),
		Action:      constants.AuditActionRoleAssign,
		PerformedBy: input.AssignedBy,
		RequestID:   input.RequestID,
		Detail:      detail,
	}); err != nil {
		return nil, err
	}
	return assignment, nil
}

// RevokeRole 撤销角色
// 分配不存在或已停用时视为成功且不写审计，返回值表示是否实际发生变更。
func (s *Service) RevokeRole(ctx context.Context, input RevokeRoleInput) (bool, error) {
	if input.UserID == 0 || input.RoleID == 0 {
		return false, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	changed := false
	err := s.repo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		assignment, err := repo.GetAssignment(input.UserID, input.RoleID)
		if err != nil {
			return err
		}
		if assignment == nil || !assignment.IsActive {
			return nil
		}
		now := s.now()
		affected, err := repo.DeactivateAssignment(assignment.ID, uintPtr(input.RevokedBy), now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		changed = true
		return s.AppendAudit(ctx, tx, AuditEntry{
			UserID:      uintPtr(input.UserID),
			RoleID:      uintPtr(input.RoleID),
			Action:      constants.AuditActionRoleRevoke,
			PerformedBy: input.RevokedBy,
			RequestID:   input.RequestID,
			Detail: models.JSON{
				"assignment_id": assignment.ID,
				"was_expired":   !assignment.EffectiveAt(now),
			},
		})
	})
	if err != nil {
		logger.Errorw("authz_role_revoke_failed", "user_id", input.UserID, "role_id", input.RoleID, "error", err)
		return false, err
	}
	if changed {
		logger.Infow("authz_role_revoked", "user_id", input.UserID, "role_id", input.RoleID, "revoked_by", input.RevokedBy, "request_id", input.RequestID)
	} else {
		logger.Debugw("authz_role_revoke_noop", "user_id", input.UserID, "role_id", input.RoleID)
	}
	return changed, nil
}

// CleanupExpired 批量停用已过期但仍标记为启用的分配
// 每批在一个事务内完成停用与审计，performed_by 记为 0（系统）。
func (s *Service) CleanupExpired(ctx context.Context, requestID string) (*CleanupResult, error) {
	result := &CleanupResult{}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		now := s.now()
		processed := 0
		err := s.repo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			expired, err := repo.ListExpiredActiveAssignments(now, s.cleanupBatch)
			if err != nil {
				return err
			}
			processed = len(expired)
			for _, item := range expired {
				affected, err := repo.DeactivateAssignment(item.ID, nil, now)
				if err != nil {
					return err
				}
				if affected == 0 {
					continue
				}
				detail := models.JSON{"assignment_id": item.ID}
				if item.ExpiresAt != nil {
					detail["expires_at"] = item.ExpiresAt.UTC().Format(time.RFC3339)
				}
				if err := s.AppendAudit(ctx, tx, AuditEntry{
					UserID:    uintPtr(item.UserID),
					RoleID:    uintPtr(item.RoleID),
					Action:    constants.AuditActionAssignmentSweep,
					RequestID: requestID,
					Detail:    detail,
				}); err != nil {
					return err
				}
				result.Expired++
			}
			return nil
		})
		if err != nil {
			logger.Errorw("authz_assignment_cleanup_failed", "expired", result.Expired, "error", err)
			return result, err
		}
		if processed == 0 {
			break
		}
		result.Batches++
		if processed < s.cleanupBatch {
			break
		}
	}
	if result.Expired > 0 {
		logger.Infow("authz_assignment_cleanup_done", "expired", result.Expired, "batches", result.Batches)
	}
	return result, nil
}

// GrantPermissionToRole 为角色授权（重复授权只刷新时间）
func (s *Service) GrantPermissionToRole(ctx context.Context, input GrantInput) error {
	err := s.repo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		role, permission, err := loadGrantTargets(repo, input)
		if err != nil {
			return err
		}
		if err := repo.UpsertRolePermission(role.ID, permission.ID, s.now()); err != nil {
			return err
		}
		return s.AppendAudit(ctx, tx, AuditEntry{
			RoleID:       uintPtr(role.ID),
			PermissionID: uintPtr(permission.ID),
			Action:       constants.AuditActionPermissionGrant,
			PerformedBy:  input.PerformedBy,
			RequestID:    input.RequestID,
			Detail:       models.JSON{"role": role.Name, "permission": permission.Name},
		})
	})
	if err != nil {
		logger.Errorw("authz_permission_grant_failed", "role_id", input.RoleID, "permission_id", input.PermissionID, "error", err)
		return err
	}
	logger.Infow("authz_permission_granted", "role_id", input.RoleID, "permission_id", input.PermissionID, "performed_by", input.PerformedBy)
	return nil
}

// RevokePermissionFromRole 撤销角色授权，授权不存在时视为成功且不写审计
func (s *Service) RevokePermissionFromRole(ctx context.Context, input GrantInput) (bool, error) {
	changed := false
	err := s.repo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		role, permission, err := loadGrantTargets(repo, input)
		if err != nil {
			return err
		}
		affected, err := repo.DeleteRolePermission(role.ID, permission.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		changed = true
		return s.AppendAudit(ctx, tx, AuditEntry{
			RoleID:       uintPtr(role.ID),
			PermissionID: uintPtr(permission.ID),
			Action:       constants.AuditActionPermissionRevoke,
			PerformedBy:  input.PerformedBy,
			RequestID:    input.RequestID,
			Detail:       models.JSON{"role": role.Name, "permission": permission.Name},
		})
	})
	if err != nil {
		logger.Errorw("authz_permission_revoke_failed", "role_id", input.RoleID, "permission_id", input.PermissionID, "error", err)
		return false, err
	}
	if changed {
		logger.Infow("authz_permission_revoked", "role_id", input.RoleID, "permission_id", input.PermissionID, "performed_by", input.PerformedBy)
	}
	return changed, nil
}

func loadGrantTargets(repo repository.AuthzRepository, input GrantInput) (*models.Role, *models.Permission, error) {
	if input.RoleID == 0 || input.PermissionID == 0 {
		return nil, nil, fmt.Errorf("%w: role_id and permission_id are required", ErrInvalidInput)
	}
	role, err := repo.GetRoleByID(input.RoleID)
	if err != nil {
		return nil, nil, err
	}
	if role == nil {
		return nil, nil, ErrRoleNotFound
	}
	permission, err := repo.GetPermissionByID(input.PermissionID)
	if err != nil {
		return nil, nil, err
	}
	if permission == nil {
		return nil, nil, ErrPermissionNotFound
	}
	return role, permission, nil
}

// CreateRoleInput 创建角色输入
type CreateRoleInput struct {
	Name        string
	Level       int
	Description string
	IsActive    *bool
	IsSuper     bool
	IsSystem    bool
	PerformedBy uint
	RequestID   string
}

// UpdateRoleInput 更新角色输入，nil 字段保持不变
type UpdateRoleInput struct {
	RoleID      uint
	Name        *string
	Level       *int
	Description *string
	IsActive    *bool
	IsSuper     *bool
	PerformedBy uint
	RequestID   string
}

// DeleteRoleInput 删除角色输入
type DeleteRoleInput struct {
	RoleID      uint
	PerformedBy uint
	RequestID   string
}

// CreateRole 创建角色
func (s *Service) CreateRole(ctx context.Context, input CreateRoleInput) (*models.Role, error) {
	var role *models.Role
	err := s.repo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		role, err = s.createRoleTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("authz_role_created", "role_id", role.ID, "name", role.Name, "level", role.Level, "performed_by", input.PerformedBy)
	return role, nil
}

func (s *Service) createRoleTx(ctx context.Context, tx *gorm.DB, input CreateRoleInput) (*models.Role, error) {
	name := normalizeRoleName(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if input.Level < 0 {
		return nil, fmt.Errorf("%w: role level must not be negative", ErrInvalidInput)
	}
	repo := s.repo.WithTx(tx)
	existing, err := repo.GetRoleByName(name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrRoleNameTaken
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	role := &models.Role{
		Name:        name,
		Level:       input.Level,
		IsActive:    active,
		IsSystem:    input.IsSystem,
		IsSuper:     input.IsSuper,
		Description: strings.TrimSpace(input.Description),
	}
	if err := repo.CreateRole(role); err != nil {
		return nil, err
	}
	if err := s.AppendAudit(ctx, tx, AuditEntry{
		RoleID:      uintPtr(role.ID),
		Action:      constants.AuditActionRoleCreate,
		PerformedBy: input.PerformedBy,
		RequestID:   input.RequestID,
		Detail: models.JSON{
			"name":      role.Name,
			"level":     role.Level,
			"is_super":  role.IsSuper,
			"is_system": role.IsSystem,
		},
	}); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRole 更新角色
// 系统角色不允许改名或停用。
func (s *Service) UpdateRole(ctx context.Context, input UpdateRoleInput) (*models.Role, error) {
	var role *models.Role
	err := s.repo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.GetRoleByID(input.RoleID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrRoleNotFound
		}
		changes := models.JSON{}
		if input.Name != nil {
			name := normalizeRoleName(*input.Name)
			if name == "" {
				return fmt.Errorf("%w: role name is required", ErrInvalidInput)
			}
			if name != current.Name {
				if current.IsSystem {
					return ErrRoleSystemProtected
				}
				existing, err := repo.GetRoleByName(name)
				if err != nil {
					return err
				}
				if existing != nil && existing.ID != current.ID {
					return ErrRoleNameTaken
				}
				changes["name"] = models.JSON{"from": current.Name, "to": name}
				current.Name = name
			}
		}
		if input.Level != nil && *input.Level != current.Level {
			if *input.Level < 0 {
				return fmt.Errorf("%w: role level must not be negative", ErrInvalidInput)
			}
			changes["level"] = models.JSON{"from": current.Level, "to": *input.Level}
			current.Level = *input.Level
		}
		if input.Description != nil {
			description := strings.TrimSpace(*input.Description)
			if description != current.Description {
				changes["description"] = models.JSON{"from": current.Description, "to": description}
				current.Description = description
			}
		}
		if input.IsActive != nil && *input.IsActive != current.IsActive {
			if current.IsSystem && !*input.IsActive {
				return ErrRoleSystemProtected
			}
			changes["is_active"] = models.JSON{"from": current.IsActive, "to": *input.IsActive}
			current.IsActive = *input.IsActive
		}
		if input.IsSuper != nil && *input.IsSuper != current.IsSuper {
			changes["is_super"] = models.JSON{"from": current.IsSuper, "to": *input.IsSuper}
			current.IsSuper = *input.IsSuper
		}
		role = current
		if len(changes) == 0 {
			return nil
		}
		if err := repo.UpdateRole(current); err != nil {
			return err
		}
		return s.AppendAudit(ctx, tx, AuditEntry{
			RoleID:      uintPtr(current.ID),
			Action:      constants.AuditActionRoleUpdate,
			PerformedBy: input.PerformedBy,
			RequestID:   input.RequestID,
			Detail:      changes,
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("authz_role_updated", "role_id", role.ID, "performed_by", input.PerformedBy)
	return role, nil
}

// DeleteRole 删除角色
// 前置条件：非系统角色且没有有效分配，否则返回 ErrLifecycleConflict 类错误。
func (s *Service) DeleteRole(ctx context.Context, input DeleteRoleInput) error {
	err := s.repo.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		role, err := repo.GetRoleByID(input.RoleID)
		if err != nil {
			return err
		}
		if role == nil {
			return ErrRoleNotFound
		}
		if role.IsSystem {
			return ErrRoleSystemProtected
		}
		count, err := repo.CountEffectiveAssignmentsByRole(role.ID, s.now())
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w (%d)", ErrRoleInUse, count)
		}
		if err := repo.DeleteRole(role.ID); err != nil {
			return err
		}
		return s.AppendAudit(ctx, tx, AuditEntry{
			RoleID:      uintPtr(role.ID),
			Action:      constants.AuditActionRoleDelete,
			PerformedBy: input.PerformedBy,
			RequestID:   input.RequestID,
			Detail:      models.JSON{"name": role.Name, "level": role.Level},
		})
	})
	if err != nil {
		logger.Warnw("authz_role_delete_failed", "role_id", input.RoleID, "error", err)
		return err
	}
	logger.Infow("authz_role_deleted", "role_id", input.RoleID, "performed_by", input.PerformedBy)
	return nil
}

// EnsureModule 确保模块存在（已存在时原样返回）
func (s *Service) EnsureModule(ctx context.Context, name, displayName string) (*models.Module, error) {
	name = normalizeKeyPart(name)
	if !isModulePart(name) {
		return nil, fmt.Errorf("%w: invalid module %q", ErrInvalidKey, name)
	}
	module := &models.Module{
		Name:        name,
		DisplayName: strings.TrimSpace(displayName),
		IsActive:    true,
	}
	if err := s.repo.WithContext(ctx).CreateModuleIfAbsent(module); err != nil {
		return nil, err
	}
	return module, nil
}

// EnsurePermission 确保权限键对应的规范权限存在（必要时一并创建模块）
func (s *Service) EnsurePermission(ctx context.Context, key PermissionKey, displayName string) (*models.Permission, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	module, err := s.EnsureModule(ctx, key.Module, "")
	if err != nil {
		return nil, err
	}
	permission := &models.Permission{
		Name:        key.Canonical(),
		ModuleID:    module.ID,
		Category:    key.Module,
		Action:      key.Action,
		DisplayName: strings.TrimSpace(displayName),
		IsActive:    true,
	}
	if err := s.repo.WithContext(ctx).CreatePermissionIfAbsent(permission); err != nil {
		return nil, err
	}
	return permission, nil
}

// SetPermissionActive 启用或停用权限（停用后所有持有该权限的角色立即失去授权）
func (s *Service) SetPermissionActive(ctx context.Context, permissionID uint, active bool) error {
	affected, err := s.repo.WithContext(ctx).UpdatePermissionActive(permissionID, active, s.now())
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPermissionNotFound
	}
	logger.Infow("authz_permission_active_changed", "permission_id", permissionID, "is_active", active)
	return nil
}

// GetRole 获取角色
func (s *Service) GetRole(ctx context.Context, roleID uint) (*models.Role, error) {
	role, err := s.repo.WithContext(ctx).GetRoleByID(roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

// FindPermission 按权限键查找权限（优先规范名，其次历史名）
func (s *Service) FindPermission(ctx context.Context, key PermissionKey) (*models.Permission, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	repo := s.repo.WithContext(ctx)
	for _, name := range key.Candidates() {
		permission, err := repo.GetPermissionByName(name)
		if err != nil {
			return nil, err
		}
		if permission != nil {
			return permission, nil
		}
	}
	return nil, ErrPermissionNotFound
}

// ListRoles 查询角色列表
func (s *Service) ListRoles(ctx context.Context, filter repository.RoleListFilter) ([]models.Role, int64, error) {
	return s.repo.WithContext(ctx).ListRoles(filter)
}

// ListRolePermissions 查询角色已授权的权限
func (s *Service) ListRolePermissions(ctx context.Context, roleID uint) ([]models.Permission, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.WithContext(ctx).ListRolePermissions(roleID)
}

// ListModules 查询模块列表
func (s *Service) ListModules(ctx context.Context, onlyActive bool) ([]models.Module, error) {
	return s.repo.WithContext(ctx).ListModules(onlyActive)
}

// ListPermissions 查询权限列表
func (s *Service) ListPermissions(ctx context.Context, filter repository.PermissionListFilter) ([]models.Permission, error) {
	return s.repo.WithContext(ctx).ListPermissions(filter)
}

// ListUserAssignments 查询用户全部分配记录（含已撤销与已过期）
func (s *Service) ListUserAssignments(ctx context.Context, userID uint) ([]models.UserRoleAssignment, error) {
	return s.repo.WithContext(ctx).ListUserAssignments(userID)
}

// Now 当前时间（便于调用方与服务使用同一时钟判断过期）
func (s *Service) Now() time.Time {
	return s.now()
}
