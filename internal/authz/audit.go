package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/adsboard-next/internal/models"

	"gorm.io/gorm"
)

// AuditEntry 权限审计记录
type AuditEntry struct {
	UserID       *uint
	RoleID       *uint
	PermissionID *uint
	Action       string
	PerformedBy  uint
	RequestID    string
	Detail       models.JSON
}

// AppendAudit 在事务内追加审计记录，失败时整个事务回滚
func (s *Service) AppendAudit(ctx context.Context, tx *gorm.DB, entry AuditEntry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return fmt.Errorf("%w: audit action is required", ErrInvalidInput)
	}
	repo := s.auditRepo
	if tx != nil {
		repo = repo.WithTx(tx)
	} else {
		repo = repo.WithContext(ctx)
	}
	item := &models.AuthzAuditLog{
		UserID:       entry.UserID,
		RoleID:       entry.RoleID,
		PermissionID: entry.PermissionID,
		Action:       action,
		PerformedBy:  entry.PerformedBy,
		RequestID:    strings.TrimSpace(entry.RequestID),
		DetailJSON:   entry.Detail,
		CreatedAt:    s.now(),
	}
	if err := repo.Create(item); err != nil {
		return fmt.Errorf("append authz audit %s failed: %w", action, err)
	}
	return nil
}

func uintPtr(v uint) *uint {
	return &v
}
