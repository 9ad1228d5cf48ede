package repository

import "time"

// RoleListFilter 查询角色列表的过滤条件
type RoleListFilter struct {
	Page     int
	PageSize int
	Search   string
	IsActive *bool
}

// PermissionListFilter 查询权限列表的过滤条件
type PermissionListFilter struct {
	ModuleID   uint
	Category   string
	OnlyActive bool
}

// UserListFilter 查询用户列表的过滤条件
type UserListFilter struct {
	Page        int
	PageSize    int
	Keyword     string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// AuthzAuditLogListFilter 查询权限审计日志列表的过滤条件
type AuthzAuditLogListFilter struct {
	Page         int
	PageSize     int
	UserID       uint
	RoleID       uint
	PermissionID uint
	PerformedBy  uint
	Action       string
	RequestID    string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// ActiveGrant 有效授权查询结果
type ActiveGrant struct {
	PermissionID   uint
	PermissionName string
	RoleLevel      int
}
