package models

import "time"

// AuthzAuditLog 权限审计日志
// 说明：仅追加写入，记录角色分配、撤销与授权变更，核心逻辑从不更新或删除。
type AuthzAuditLog struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	UserID       *uint     `gorm:"index" json:"user_id,omitempty"`
	RoleID       *uint     `gorm:"index" json:"role_id,omitempty"`
	PermissionID *uint     `gorm:"index" json:"permission_id,omitempty"`
	Action       string    `gorm:"type:varchar(64);index;not null" json:"action"`
	PerformedBy  uint      `gorm:"index;not null;default:0" json:"performed_by"`
	RequestID    string    `gorm:"type:varchar(64);index;not null;default:''" json:"request_id"`
	DetailJSON   JSON      `gorm:"type:json" json:"detail"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (AuthzAuditLog) TableName() string {
	return "authz_audit_logs"
}
