package models

import "time"

// Role 角色表
// 说明：Level 越高权限越大，Level 达到阈值或 IsSuper 为真时视为超级角色（免权限校验）。
type Role struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                     // 主键
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`       // 角色名（区分大小写）
	Level       int       `gorm:"not null;default:0;index" json:"level"`                    // 权限等级
	IsActive    bool      `gorm:"not null;index" json:"is_active"`                          // 是否启用
	IsSystem    bool      `gorm:"not null;default:false" json:"is_system"`                  // 系统内置（不可删除）
	IsSuper     bool      `gorm:"not null;default:false" json:"is_super"`                   // 显式超级角色标记
	Description string    `gorm:"type:varchar(255);not null;default:''" json:"description"` // 描述
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                                  // 创建时间
	UpdatedAt   time.Time `json:"updated_at"`                                               // 更新时间
}

// TableName 指定表名
func (Role) TableName() string {
	return "roles"
}
