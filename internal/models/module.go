package models

import "time"

// Module 功能模块表（权限分组）
type Module struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Name        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	DisplayName string    `gorm:"type:varchar(100);not null;default:''" json:"display_name"`
	IsActive    bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Module) TableName() string {
	return "modules"
}
