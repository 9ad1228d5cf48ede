package repository

import (
	"context"

	"github.com/adsboard-next/internal/models"

	"gorm.io/gorm"
)

// AuthzAuditLogRepository 权限审计日志数据访问接口（仅追加）
type AuthzAuditLogRepository interface {
	WithTx(tx *gorm.DB) AuthzAuditLogRepository
	WithContext(ctx context.Context) AuthzAuditLogRepository
	Create(log *models.AuthzAuditLog) error
	ListAdmin(filter AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error)
}

// GormAuthzAuditLogRepository GORM 实现
type GormAuthzAuditLogRepository struct {
	db *gorm.DB
}

// NewAuthzAuditLogRepository 创建权限审计日志仓库
func NewAuthzAuditLogRepository(db *gorm.DB) *GormAuthzAuditLogRepository {
	return &GormAuthzAuditLogRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAuthzAuditLogRepository) WithTx(tx *gorm.DB) AuthzAuditLogRepository {
	if tx == nil {
		return r
	}
	return &GormAuthzAuditLogRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormAuthzAuditLogRepository) WithContext(ctx context.Context) AuthzAuditLogRepository {
	if ctx == nil {
		return r
	}
	return &GormAuthzAuditLogRepository{db: r.db.WithContext(ctx)}
}

// Create 创建权限审计日志
func (r *GormAuthzAuditLogRepository) Create(log *models.AuthzAuditLog) error {
	if log == nil {
		return nil
	}
	return r.db.Create(log).Error
}

// ListAdmin 管理端查询权限审计日志
func (r *GormAuthzAuditLogRepository) ListAdmin(filter AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error) {
	query := r.db.Model(&models.AuthzAuditLog{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.RoleID != 0 {
		query = query.Where("role_id = ?", filter.RoleID)
	}
	if filter.PermissionID != 0 {
		query = query.Where("permission_id = ?", filter.PermissionID)
	}
	if filter.PerformedBy != 0 {
		query = query.Where("performed_by = ?", filter.PerformedBy)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.RequestID != "" {
		query = query.Where("request_id = ?", filter.RequestID)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	logs := make([]models.AuthzAuditLog, 0)
	if err := query.Order("id DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
