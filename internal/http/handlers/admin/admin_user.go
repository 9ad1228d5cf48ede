package admin

import (
	"strings"
	"time"

	"github.com/adsboard-next/internal/http/response"
	"github.com/adsboard-next/internal/repository"
	"github.com/adsboard-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateUserRequest 创建后台用户请求
type CreateUserRequest struct {
	Email         string     `json:"email" binding:"required,max=255"`
	Password      string     `json:"password" binding:"required"`
	DisplayName   string     `json:"display_name" binding:"max=100"`
	RoleID        uint       `json:"role_id" binding:"required"`
	RoleExpiresAt *time.Time `json:"role_expires_at"`
}

// BatchUpdateUserStatusRequest 批量更新用户状态请求
type BatchUpdateUserStatusRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required,min=1"`
	Status  string `json:"status" binding:"required"`
}

// ListUsers 获取用户列表
func (h *Handler) ListUsers(c *gin.Context) {
	page, pageSize := queryPagination(c)
	createdFrom, ok := queryTime(c, "created_from")
	if !ok {
		return
	}
	createdTo, ok := queryTime(c, "created_to")
	if !ok {
		return
	}

	users, total, err := h.UserService.List(c.Request.Context(), repository.UserListFilter{
		Page:        page,
		PageSize:    pageSize,
		Keyword:     strings.TrimSpace(c.Query("keyword")),
		Status:      strings.TrimSpace(c.Query("status")),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, users, response.NewPagination(page, pageSize, total))
}

// GetUser 获取用户详情（含生效角色）
func (h *Handler) GetUser(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	detail, err := h.UserService.Get(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, detail)
}

// CreateUser 创建后台用户并分配初始角色
func (h *Handler) CreateUser(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	user, err := h.UserService.Create(c.Request.Context(), service.CreateUserInput{
		Email:         req.Email,
		Password:      req.Password,
		DisplayName:   req.DisplayName,
		RoleID:        req.RoleID,
		RoleExpiresAt: req.RoleExpiresAt,
		PerformedBy:   actor.UserID,
		RequestID:     currentRequestID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, user)
}

// BatchUpdateUserStatus 批量启用或停用用户
func (h *Handler) BatchUpdateUserStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req BatchUpdateUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	for _, id := range req.UserIDs {
		if id == actor.UserID {
			respondError(c, response.CodeBadRequest, "error.user_status_self", nil)
			return
		}
	}
	if err := h.UserService.UpdateStatus(c.Request.Context(), req.UserIDs, req.Status); err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("user_status_updated", "user_ids", req.UserIDs, "status", req.Status, "performed_by", actor.UserID)
	response.Success(c, gin.H{"updated": len(req.UserIDs)})
}
