package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/adsboard-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuthzRepository 权限存储数据访问接口（角色、模块、权限、授权、用户角色分配）
type AuthzRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AuthzRepository
	WithContext(ctx context.Context) AuthzRepository

	GetRoleByID(id uint) (*models.Role, error)
	GetRoleByName(name string) (*models.Role, error)
	ListRoles(filter RoleListFilter) ([]models.Role, int64, error)
	CreateRole(role *models.Role) error
	UpdateRole(role *models.Role) error
	DeleteRole(id uint) error
	CountEffectiveAssignmentsByRole(roleID uint, now time.Time) (int64, error)

	GetModuleByName(name string) (*models.Module, error)
	ListModules(onlyActive bool) ([]models.Module, error)
	CreateModuleIfAbsent(module *models.Module) error

	GetPermissionByID(id uint) (*models.Permission, error)
	GetPermissionByName(name string) (*models.Permission, error)
	ListPermissions(filter PermissionListFilter) ([]models.Permission, error)
	CreatePermissionIfAbsent(permission *models.Permission) error
	UpdatePermissionActive(id uint, active bool, updatedAt time.Time) (int64, error)

	UpsertRolePermission(roleID, permissionID uint, now time.Time) error
	DeleteRolePermission(roleID, permissionID uint) (int64, error)
	ListRolePermissions(roleID uint) ([]models.Permission, error)
	FindActiveGrant(roleID uint, names []string) (*ActiveGrant, error)
	ListActiveGrantNamesByModule(roleID uint, module string) ([]string, error)

	GetAssignment(userID, roleID uint) (*models.UserRoleAssignment, error)
	UpsertAssignment(assignment *models.UserRoleAssignment) error
	DeactivateAssignment(id uint, revokedBy *uint, revokedAt time.Time) (int64, error)
	ListUserAssignments(userID uint) ([]models.UserRoleAssignment, error)
	ListEffectiveRoles(userID uint, now time.Time) ([]models.Role, error)
	ListExpiredActiveAssignments(now time.Time, limit int) ([]models.UserRoleAssignment, error)
}

// GormAuthzRepository GORM 实现
type GormAuthzRepository struct {
	db *gorm.DB
}

// NewAuthzRepository 创建权限存储仓库
func NewAuthzRepository(db *gorm.DB) *GormAuthzRepository {
	return &GormAuthzRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAuthzRepository) WithTx(tx *gorm.DB) AuthzRepository {
	if tx == nil {
		return r
	}
	return &GormAuthzRepository{db: tx}
}

// WithContext 绑定请求上下文（超时与取消会传递到数据库调用）
func (r *GormAuthzRepository) WithContext(ctx context.Context) AuthzRepository {
	if ctx == nil {
		return r
	}
	return &GormAuthzRepository{db: r.db.WithContext(ctx)}
}

// Transaction 执行事务
func (r *GormAuthzRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetRoleByID 根据 ID 获取角色
func (r *GormAuthzRepository) GetRoleByID(id uint) (*models.Role, error) {
	if id == 0 {
		return nil, nil
	}
	var role models.Role
	if err := r.db.First(&role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// GetRoleByName 根据名称获取角色（区分大小写）
func (r *GormAuthzRepository) GetRoleByName(name string) (*models.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var role models.Role
	if err := r.db.Where("name = ?", name).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// ListRoles 查询角色列表
func (r *GormAuthzRepository) ListRoles(filter RoleListFilter) ([]models.Role, int64, error) {
	query := r.db.Model(&models.Role{})
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("name "+likeOperator(r.db)+" ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	roles := make([]models.Role, 0)
	if err := query.Order("level DESC").Order("id ASC").Find(&roles).Error; err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

// CreateRole 创建角色
func (r *GormAuthzRepository) CreateRole(role *models.Role) error {
	return r.db.Create(role).Error
}

// UpdateRole 更新角色
func (r *GormAuthzRepository) UpdateRole(role *models.Role) error {
	return r.db.Save(role).Error
}

// DeleteRole 删除角色及其授权与历史分配（调用方需先确认无有效分配）
func (r *GormAuthzRepository) DeleteRole(id uint) error {
	if id == 0 {
		return nil
	}
	if err := r.db.Where("role_id = ?", id).Delete(&models.RolePermission{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("role_id = ?", id).Delete(&models.UserRoleAssignment{}).Error; err != nil {
		return err
	}
	return r.db.Delete(&models.Role{}, id).Error
}

// CountEffectiveAssignmentsByRole 统计角色当前有效（启用且未过期）的分配数
func (r *GormAuthzRepository) CountEffectiveAssignmentsByRole(roleID uint, now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserRoleAssignment{}).
		Where("role_id = ? AND is_active = ?", roleID, true).
		Where("expires_at IS NULL OR expires_at > ?", now.UTC()).
		Count(&count).Error
	return count, err
}

// GetModuleByName 根据名称获取模块
func (r *GormAuthzRepository) GetModuleByName(name string) (*models.Module, error) {
	var module models.Module
	if err := r.db.Where("name = ?", name).First(&module).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &module, nil
}

// ListModules 获取模块列表
func (r *GormAuthzRepository) ListModules(onlyActive bool) ([]models.Module, error) {
	query := r.db.Model(&models.Module{})
	if onlyActive {
		query = query.Where("is_active = ?", true)
	}
	modules := make([]models.Module, 0)
	if err := query.Order("name ASC").Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// CreateModuleIfAbsent 模块不存在时创建，存在时回填已有记录
func (r *GormAuthzRepository) CreateModuleIfAbsent(module *models.Module) error {
	if module == nil {
		return nil
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(module).Error; err != nil {
		return err
	}
	return r.db.Where("name = ?", module.Name).First(module).Error
}

// GetPermissionByID 根据 ID 获取权限
func (r *GormAuthzRepository) GetPermissionByID(id uint) (*models.Permission, error) {
	if id == 0 {
		return nil, nil
	}
	var permission models.Permission
	if err := r.db.First(&permission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &permission, nil
}

// GetPermissionByName 根据名称获取权限
func (r *GormAuthzRepository) GetPermissionByName(name string) (*models.Permission, error) {
	var permission models.Permission
	if err := r.db.Where("name = ?", name).First(&permission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &permission, nil
}

// ListPermissions 查询权限列表
func (r *GormAuthzRepository) ListPermissions(filter PermissionListFilter) ([]models.Permission, error) {
	query := r.db.Model(&models.Permission{}).Preload("Module")
	if filter.ModuleID != 0 {
		query = query.Where("module_id = ?", filter.ModuleID)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.OnlyActive {
		query = query.Where("is_active = ?", true)
	}
	permissions := make([]models.Permission, 0)
	if err := query.Order("name ASC").Find(&permissions).Error; err != nil {
		return nil, err
	}
	return permissions, nil
}

// CreatePermissionIfAbsent 权限不存在时创建，存在时回填已有记录
func (r *GormAuthzRepository) CreatePermissionIfAbsent(permission *models.Permission) error {
	if permission == nil {
		return nil
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(permission).Error; err != nil {
		return err
	}
	return r.db.Where("name = ?", permission.Name).First(permission).Error
}

// UpdatePermissionActive 启用或停用权限
func (r *GormAuthzRepository) UpdatePermissionActive(id uint, active bool, updatedAt time.Time) (int64, error) {
	result := r.db.Model(&models.Permission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": updatedAt,
		})
	return result.RowsAffected, result.Error
}

// UpsertRolePermission 授权（已存在时刷新 updated_at）
func (r *GormAuthzRepository) UpsertRolePermission(roleID, permissionID uint, now time.Time) error {
	row := models.RolePermission{
		RoleID:       roleID,
		PermissionID: permissionID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role_id"}, {Name: "permission_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": now}),
	}).Create(&row).Error
}

// DeleteRolePermission 撤销授权
func (r *GormAuthzRepository) DeleteRolePermission(roleID, permissionID uint) (int64, error) {
	result := r.db.Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&models.RolePermission{})
	return result.RowsAffected, result.Error
}

// ListRolePermissions 获取角色已授权的权限（含停用项）
func (r *GormAuthzRepository) ListRolePermissions(roleID uint) ([]models.Permission, error) {
	permissions := make([]models.Permission, 0)
	err := r.db.Model(&models.Permission{}).
		Preload("Module").
		Joins("JOIN role_permissions rp ON rp.permission_id = permissions.id").
		Where("rp.role_id = ?", roleID).
		Order("permissions.name ASC").
		Find(&permissions).Error
	if err != nil {
		return nil, err
	}
	return permissions, nil
}

// FindActiveGrant 查找角色对任一候选权限名的有效授权
// 角色、权限、模块三者均需启用。
func (r *GormAuthzRepository) FindActiveGrant(roleID uint, names []string) (*ActiveGrant, error) {
	if roleID == 0 || len(names) == 0 {
		return nil, nil
	}
	var grant ActiveGrant
	result := r.activeGrantQuery(roleID).
		Select("permissions.id AS permission_id, permissions.name AS permission_name, roles.level AS role_level").
		Where("permissions.name IN ?", names).
		Order("permissions.id ASC").
		Limit(1).
		Scan(&grant)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &grant, nil
}

// ListActiveGrantNamesByModule 诊断查询：角色在指定模块下持有的有效权限名
func (r *GormAuthzRepository) ListActiveGrantNamesByModule(roleID uint, module string) ([]string, error) {
	names := make([]string, 0)
	if roleID == 0 || module == "" {
		return names, nil
	}
	err := r.activeGrantQuery(roleID).
		Where(
			"permissions.name LIKE ? ESCAPE '\\' OR permissions.name LIKE ? ESCAPE '\\' OR permissions.category = ?",
			escapeLike(module)+"\\_%", escapeLike(module)+".%", module,
		).
		Order("permissions.name ASC").
		Pluck("permissions.name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (r *GormAuthzRepository) activeGrantQuery(roleID uint) *gorm.DB {
	return r.db.Model(&models.Permission{}).
		Joins("JOIN role_permissions rp ON rp.permission_id = permissions.id").
		Joins("JOIN roles ON roles.id = rp.role_id").
		Joins("JOIN modules ON modules.id = permissions.module_id").
		Where("rp.role_id = ?", roleID).
		Where("roles.is_active = ? AND permissions.is_active = ? AND modules.is_active = ?", true, true, true)
}

// GetAssignment 获取用户角色分配（含失效记录）
func (r *GormAuthzRepository) GetAssignment(userID, roleID uint) (*models.UserRoleAssignment, error) {
	var assignment models.UserRoleAssignment
	if err := r.db.Where("user_id = ? AND role_id = ?", userID, roleID).First(&assignment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &assignment, nil
}

// UpsertAssignment 写入用户角色分配
// 同一 (user_id, role_id) 已存在时刷新分配信息并重新启用，完成后回填最新记录。
func (r *GormAuthzRepository) UpsertAssignment(assignment *models.UserRoleAssignment) error {
	if assignment == nil {
		return nil
	}
	if assignment.ExpiresAt != nil {
		utc := assignment.ExpiresAt.UTC()
		assignment.ExpiresAt = &utc
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "role_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"assigned_by": assignment.AssignedBy,
			"assigned_at": assignment.AssignedAt,
			"expires_at":  assignment.ExpiresAt,
			"is_active":   assignment.IsActive,
			"revoked_by":  nil,
			"revoked_at":  nil,
			"updated_at":  assignment.AssignedAt,
		}),
	}).Create(assignment).Error
	if err != nil {
		return err
	}
	return r.db.Where("user_id = ? AND role_id = ?", assignment.UserID, assignment.RoleID).First(assignment).Error
}

// DeactivateAssignment 停用分配，仅对仍处于启用状态的记录生效
func (r *GormAuthzRepository) DeactivateAssignment(id uint, revokedBy *uint, revokedAt time.Time) (int64, error) {
	result := r.db.Model(&models.UserRoleAssignment{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"revoked_by": revokedBy,
			"revoked_at": revokedAt,
			"updated_at": revokedAt,
		})
	return result.RowsAffected, result.Error
}

// ListUserAssignments 获取用户全部分配记录
func (r *GormAuthzRepository) ListUserAssignments(userID uint) ([]models.UserRoleAssignment, error) {
	assignments := make([]models.UserRoleAssignment, 0)
	err := r.db.Preload("Role").
		Where("user_id = ?", userID).
		Order("assigned_at DESC").Order("id DESC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

// ListEffectiveRoles 获取用户当前生效的角色，按等级降序、ID 升序
func (r *GormAuthzRepository) ListEffectiveRoles(userID uint, now time.Time) ([]models.Role, error) {
	roles := make([]models.Role, 0)
	if userID == 0 {
		return roles, nil
	}
	err := r.db.Model(&models.Role{}).
		Joins("JOIN user_role_assignments ura ON ura.role_id = roles.id").
		Where("ura.user_id = ? AND ura.is_active = ? AND roles.is_active = ?", userID, true, true).
		Where("ura.expires_at IS NULL OR ura.expires_at > ?", now.UTC()).
		Order("roles.level DESC").Order("roles.id ASC").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// ListExpiredActiveAssignments 获取已过期但仍标记为启用的分配
func (r *GormAuthzRepository) ListExpiredActiveAssignments(now time.Time, limit int) ([]models.UserRoleAssignment, error) {
	query := r.db.Model(&models.UserRoleAssignment{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now.UTC()).
		Order("expires_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	assignments := make([]models.UserRoleAssignment, 0)
	if err := query.Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return replacer.Replace(value)
}
