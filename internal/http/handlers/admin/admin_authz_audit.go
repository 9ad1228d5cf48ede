package admin

import (
	"strings"

	"github.com/adsboard-next/internal/http/response"
	"github.com/adsboard-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListAuthzAuditLogs 获取权限审计日志列表
func (h *Handler) ListAuthzAuditLogs(c *gin.Context) {
	page, pageSize := queryPagination(c)

	createdFrom, ok := queryTime(c, "created_from")
	if !ok {
		return
	}
	createdTo, ok := queryTime(c, "created_to")
	if !ok {
		return
	}

	items, total, err := h.AuthzAuditService.ListForAdmin(c.Request.Context(), repository.AuthzAuditLogListFilter{
		Page:         page,
		PageSize:     pageSize,
		UserID:       queryUint(c, "user_id"),
		RoleID:       queryUint(c, "role_id"),
		PermissionID: queryUint(c, "permission_id"),
		PerformedBy:  queryUint(c, "performed_by"),
		Action:       strings.ToUpper(strings.TrimSpace(c.Query("action"))),
		RequestID:    strings.TrimSpace(c.Query("request_id")),
		CreatedFrom:  createdFrom,
		CreatedTo:    createdTo,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, items, response.NewPagination(page, pageSize, total))
}
