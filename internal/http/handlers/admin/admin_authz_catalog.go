package admin

import (
	"strings"

	"github.com/adsboard-next/internal/http/response"
	"github.com/adsboard-next/internal/repository"

	"github.com/gin-gonic/gin"
)

type ensurePermissionPayload struct {
	permissionKeyPayload
	DisplayName       string `json:"display_name" binding:"max=100"`
	ModuleDisplayName string `json:"module_display_name" binding:"max=100"`
}

type permissionStatusPayload struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// ListAuthzModules 获取模块列表
func (h *Handler) ListAuthzModules(c *gin.Context) {
	onlyActive := strings.TrimSpace(c.Query("only_active")) == "true"
	modules, err := h.AuthzService.ListModules(c.Request.Context(), onlyActive)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, modules)
}

// ListAuthzPermissions 获取权限目录
func (h *Handler) ListAuthzPermissions(c *gin.Context) {
	permissions, err := h.AuthzService.ListPermissions(c.Request.Context(), repository.PermissionListFilter{
		ModuleID:   queryUint(c, "module_id"),
		Category:   strings.ToLower(strings.TrimSpace(c.Query("module"))),
		OnlyActive: strings.TrimSpace(c.Query("only_active")) == "true",
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, permissions)
}

// EnsureAuthzPermission 登记权限（模块不存在时一并创建）
func (h *Handler) EnsureAuthzPermission(c *gin.Context) {
	var req ensurePermissionPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	key, err := req.key()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := h.AuthzService.EnsureModule(ctx, key.Module, req.ModuleDisplayName); err != nil {
		respondServiceError(c, err)
		return
	}
	permission, err := h.AuthzService.EnsurePermission(ctx, key, req.DisplayName)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, permission)
}

// UpdateAuthzPermissionStatus 启用或停用权限
func (h *Handler) UpdateAuthzPermissionStatus(c *gin.Context) {
	permissionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req permissionStatusPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	if err := h.AuthzService.SetPermissionActive(c.Request.Context(), permissionID, *req.IsActive); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"id": permissionID, "is_active": *req.IsActive})
}
