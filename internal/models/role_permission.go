package models

import "time"

// RolePermission 角色授权关系表
// 说明：(role_id, permission_id) 唯一，重复授权只刷新 UpdatedAt。
type RolePermission struct {
	ID           uint        `gorm:"primarykey" json:"id"`
	RoleID       uint        `gorm:"not null;uniqueIndex:uk_role_permission,priority:1" json:"role_id"`
	PermissionID uint        `gorm:"not null;uniqueIndex:uk_role_permission,priority:2;index" json:"permission_id"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Role         *Role       `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	Permission   *Permission `gorm:"foreignKey:PermissionID" json:"permission,omitempty"`
}

// TableName 指定表名
func (RolePermission) TableName() string {
	return "role_permissions"
}
