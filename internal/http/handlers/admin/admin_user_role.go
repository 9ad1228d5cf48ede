package admin

import (
	"strings"
	"time"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/http/response"
	"github.com/adsboard-next/internal/queue"

	"github.com/gin-gonic/gin"
)

type assignRolePayload struct {
	RoleID    uint       `json:"role_id" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// ListUserRoles 获取用户的角色分配
func (h *Handler) ListUserRoles(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	assignments, err := h.UserService.ListRoles(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	now := h.AuthzService.Now()
	items := make([]gin.H, 0, len(assignments))
	for i := range assignments {
		item := &assignments[i]
		items = append(items, gin.H{
			"assignment": item,
			"effective":  item.EffectiveAt(now),
		})
	}
	response.Success(c, items)
}

// AssignUserRole 为用户分配角色
func (h *Handler) AssignUserRole(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req assignRolePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	assignment, err := h.UserService.AssignRole(c.Request.Context(), authz.AssignRoleInput{
		UserID:     userID,
		RoleID:     req.RoleID,
		AssignedBy: actor.UserID,
		ExpiresAt:  req.ExpiresAt,
		RequestID:  currentRequestID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, assignment)
}

// RevokeUserRole 撤销用户角色
func (h *Handler) RevokeUserRole(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	roleID, ok := paramID(c, "role_id")
	if !ok {
		return
	}
	changed, err := h.UserService.RevokeRole(c.Request.Context(), authz.RevokeRoleInput{
		UserID:    userID,
		RoleID:    roleID,
		RevokedBy: actor.UserID,
		RequestID: currentRequestID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": userID, "role_id": roleID, "revoked": changed})
}

// CleanupExpiredAssignments 清理已过期的角色分配
// async=true 时投递到任务队列，否则同步执行。
func (h *Handler) CleanupExpiredAssignments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	requestID := currentRequestID(c)
	if strings.TrimSpace(c.Query("async")) == "true" {
		if h.QueueClient == nil {
			respondServiceError(c, queue.ErrQueueDisabled)
			return
		}
		taskID, err := h.QueueClient.EnqueueAssignmentCleanup(queue.AssignmentCleanupPayload{
			RequestID:   requestID,
			RequestedBy: actor.UserID,
		})
		if err != nil {
			respondServiceError(c, err)
			return
		}
		requestLog(c).Infow("authz_assignment_cleanup_enqueued", "task_id", taskID, "requested_by", actor.UserID)
		response.Success(c, gin.H{"queued": true, "task_id": taskID})
		return
	}

	result, err := h.AuthzService.CleanupExpired(c.Request.Context(), requestID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}
