package constants

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 权限审计动作常量
const (
	AuditActionRoleAssign       = "ROLE_ASSIGN"
	AuditActionRoleRevoke       = "ROLE_REVOKE"
	AuditActionPermissionGrant  = "PERMISSION_GRANT"
	AuditActionPermissionRevoke = "PERMISSION_REVOKE"
	AuditActionUserCreated      = "USER_CREATED"
	AuditActionRoleCreate       = "ROLE_CREATE"
	AuditActionRoleUpdate       = "ROLE_UPDATE"
	AuditActionRoleDelete       = "ROLE_DELETE"
	AuditActionAssignmentSweep  = "ASSIGNMENT_EXPIRE_SWEEP"
)

// 功能模块常量
const (
	ModuleCampaigns = "campaigns"
	ModuleAds       = "ads"
	ModuleReports   = "reports"
	ModuleUsers     = "users"
	ModuleRoles     = "roles"
	ModuleDashboard = "dashboard"
	ModuleAnalytics = "analytics"
	ModuleAudit     = "audit"
)

// 通用动作常量
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionExport = "export"
)

// 队列名称常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型常量
const (
	TaskAssignmentCleanup = "authz:assignment_cleanup"
)
