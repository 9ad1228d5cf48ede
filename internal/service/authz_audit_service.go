package service

import (
	"context"

	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/repository"
)

// AuthzAuditService 权限审计查询服务
// 审计写入只发生在 authz 生命周期事务内，这里只读。
type AuthzAuditService struct {
	repo repository.AuthzAuditLogRepository
}

// NewAuthzAuditService 创建权限审计服务
func NewAuthzAuditService(repo repository.AuthzAuditLogRepository) *AuthzAuditService {
	return &AuthzAuditService{repo: repo}
}

// ListForAdmin 管理端查询权限审计日志
func (s *AuthzAuditService) ListForAdmin(ctx context.Context, filter repository.AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error) {
	if s == nil || s.repo == nil {
		return []models.AuthzAuditLog{}, 0, nil
	}
	return s.repo.WithContext(ctx).ListAdmin(filter)
}
