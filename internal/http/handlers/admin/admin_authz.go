package admin

import (
	"strings"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/http/response"
	"github.com/adsboard-next/internal/repository"

	"github.com/gin-gonic/gin"
)

type permissionKeyPayload struct {
	Module string `json:"module" binding:"required"`
	Action string `json:"action" binding:"required"`
}

type authzCheckPayload struct {
	Mode        string                 `json:"mode"`
	Permissions []permissionKeyPayload `json:"permissions" binding:"required,min=1,max=50"`
}

type createRolePayload struct {
	Name        string `json:"name" binding:"required,max=100"`
	Level       int    `json:"level" binding:"min=0"`
	Description string `json:"description" binding:"max=255"`
	IsActive    *bool  `json:"is_active"`
	IsSuper     bool   `json:"is_super"`
}

type updateRolePayload struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	Level       *int    `json:"level" binding:"omitempty,min=0"`
	Description *string `json:"description" binding:"omitempty,max=255"`
	IsActive    *bool   `json:"is_active"`
	IsSuper     *bool   `json:"is_super"`
}

type grantPayload struct {
	PermissionID uint   `json:"permission_id"`
	Module       string `json:"module"`
	Action       string `json:"action"`
}

func (p permissionKeyPayload) key() (authz.PermissionKey, error) {
	return authz.NewPermissionKey(p.Module, p.Action)
}

// GetAuthzMe 获取当前用户的身份、生效角色与权限快照
func (h *Handler) GetAuthzMe(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	bypassed, role, err := h.AuthzService.IsBypassed(ctx, actor.RoleID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	permissions := make([]string, 0)
	if role != nil && !bypassed {
		granted, err := h.AuthzService.ListRolePermissions(ctx, role.ID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		for _, item := range granted {
			// 与判定一致：权限与所属模块都需启用
			if item.IsActive && item.Module != nil && item.Module.IsActive {
				permissions = append(permissions, item.Name)
			}
		}
	}

	response.Success(c, gin.H{
		"user_id":     actor.UserID,
		"username":    actor.Username,
		"role":        role,
		"bypassed":    bypassed,
		"permissions": permissions,
	})
}

// CheckAuthzPermissions 以当前用户身份评估一组权限键（不拦截请求，只返回判定结果）
func (h *Handler) CheckAuthzPermissions(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req authzCheckPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	keys := make([]authz.PermissionKey, 0, len(req.Permissions))
	for _, item := range req.Permissions {
		key, err := item.key()
		if err != nil {
			respondServiceError(c, err)
			return
		}
		keys = append(keys, key)
	}

	ctx := c.Request.Context()
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	var (
		outcome *authz.Outcome
		err     error
	)
	switch mode {
	case "", authz.ModeAll:
		outcome, err = h.AuthzService.RequireAll(ctx, actor, keys)
	case authz.ModeAny:
		outcome, err = h.AuthzService.RequireAny(ctx, actor, keys)
	default:
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, outcome)
}

// ListAuthzRoles 获取角色列表
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	page, pageSize := queryPagination(c)
	filter := repository.RoleListFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   strings.TrimSpace(c.Query("search")),
	}
	switch strings.TrimSpace(c.Query("is_active")) {
	case "true", "1":
		active := true
		filter.IsActive = &active
	case "false", "0":
		inactive := false
		filter.IsActive = &inactive
	}

	roles, total, err := h.AuthzService.ListRoles(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, roles, response.NewPagination(page, pageSize, total))
}

// GetAuthzRole 获取角色详情
func (h *Handler) GetAuthzRole(c *gin.Context) {
	roleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	role, err := h.AuthzService.GetRole(c.Request.Context(), roleID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, role)
}

// CreateAuthzRole 创建角色
func (h *Handler) CreateAuthzRole(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req createRolePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	role, err := h.AuthzService.CreateRole(c.Request.Context(), authz.CreateRoleInput{
		Name:        req.Name,
		Level:       req.Level,
		Description: req.Description,
		IsActive:    req.IsActive,
		IsSuper:     req.IsSuper,
		PerformedBy: actor.UserID,
		RequestID:   currentRequestID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, role)
}

// UpdateAuthzRole 更新角色
func (h *Handler) UpdateAuthzRole(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	roleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req updateRolePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	role, err := h.AuthzService.UpdateRole(c.Request.Context(), authz.UpdateRoleInput{
		RoleID:      roleID,
		Name:        req.Name,
		Level:       req.Level,
		Description: req.Description,
		IsActive:    req.IsActive,
		IsSuper:     req.IsSuper,
		PerformedBy: actor.UserID,
		RequestID:   currentRequestID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, role)
}

// DeleteAuthzRole 删除角色
func (h *Handler) DeleteAuthzRole(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	roleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	err := h.AuthzService.DeleteRole(c.Request.Context(), authz.DeleteRoleInput{
		RoleID:      roleID,
		PerformedBy: actor.UserID,
		RequestID:   currentRequestID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// ListAuthzRolePermissions 获取角色已授权的权限
func (h *Handler) ListAuthzRolePermissions(c *gin.Context) {
	roleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	permissions, err := h.AuthzService.ListRolePermissions(c.Request.Context(), roleID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, permissions)
}

// GrantAuthzRolePermission 为角色授予权限
// 请求体可直接给出 permission_id，也可给出 module + action。
func (h *Handler) GrantAuthzRolePermission(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	roleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req grantPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	permissionID := req.PermissionID
	if permissionID == 0 {
		key, err := authz.NewPermissionKey(req.Module, req.Action)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		permission, err := h.AuthzService.FindPermission(c.Request.Context(), key)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		permissionID = permission.ID
	}

	err := h.AuthzService.GrantPermissionToRole(c.Request.Context(), authz.GrantInput{
		RoleID:       roleID,
		PermissionID: permissionID,
		PerformedBy:  actor.UserID,
		RequestID:    currentRequestID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"role_id": roleID, "permission_id": permissionID, "granted": true})
}

// RevokeAuthzRolePermission 撤销角色的权限
func (h *Handler) RevokeAuthzRolePermission(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	roleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	permissionID, ok := paramID(c, "permission_id")
	if !ok {
		return
	}
	changed, err := h.AuthzService.RevokePermissionFromRole(c.Request.Context(), authz.GrantInput{
		RoleID:       roleID,
		PermissionID: permissionID,
		PerformedBy:  actor.UserID,
		RequestID:    currentRequestID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"role_id": roleID, "permission_id": permissionID, "revoked": changed})
}
