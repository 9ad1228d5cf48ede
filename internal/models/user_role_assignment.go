package models

import "time"

// UserRoleAssignment 用户角色分配表
// 说明：ExpiresAt 早于当前时间的记录即使 IsActive 仍为真，也按已失效处理（惰性过期）。
// 重新分配同一 (user_id, role_id) 会刷新分配信息，视为一次新的授予。
type UserRoleAssignment struct {
	ID         uint       `gorm:"primarykey" json:"id"`                                              // 主键
	UserID     uint       `gorm:"not null;uniqueIndex:uk_user_role,priority:1" json:"user_id"`       // 用户
	RoleID     uint       `gorm:"not null;uniqueIndex:uk_user_role,priority:2;index" json:"role_id"` // 角色
	AssignedBy uint       `gorm:"not null;default:0" json:"assigned_by"`                             // 操作人
	AssignedAt time.Time  `gorm:"not null" json:"assigned_at"`                                       // 分配时间
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at,omitempty"`                                 // 过期时间
	IsActive   bool       `gorm:"not null;index" json:"is_active"`                                   // 是否有效
	RevokedBy  *uint      `json:"revoked_by,omitempty"`                                              // 撤销人
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`                                              // 撤销时间
	UpdatedAt  time.Time  `json:"updated_at"`                                                        // 更新时间
	Role       *Role      `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

// TableName 指定表名
func (UserRoleAssignment) TableName() string {
	return "user_role_assignments"
}

// EffectiveAt 判断分配在指定时间点是否生效
func (a *UserRoleAssignment) EffectiveAt(now time.Time) bool {
	if a == nil || !a.IsActive {
		return false
	}
	if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
		return false
	}
	return true
}
