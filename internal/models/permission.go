package models

import "time"

// Permission 权限表
// 说明：Name 规范格式为 {module}_{action}，兼容历史数据中的 {module}.{action}。
type Permission struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                       // 主键
	Name        string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"name"`         // 权限名
	ModuleID    uint      `gorm:"index;not null" json:"module_id"`                            // 所属模块
	Category    string    `gorm:"type:varchar(64);index;not null;default:''" json:"category"` // 分类（与模块名一致）
	Action      string    `gorm:"type:varchar(64);index;not null;default:''" json:"action"`   // 动作
	DisplayName string    `gorm:"type:varchar(100);not null;default:''" json:"display_name"`  // 展示名
	IsActive    bool      `gorm:"not null;index" json:"is_active"`                            // 是否启用
	CreatedAt   time.Time `json:"created_at"`                                                 // 创建时间
	UpdatedAt   time.Time `json:"updated_at"`                                                 // 更新时间
	Module      *Module   `gorm:"foreignKey:ModuleID" json:"module,omitempty"`
}

// TableName 指定表名
func (Permission) TableName() string {
	return "permissions"
}
