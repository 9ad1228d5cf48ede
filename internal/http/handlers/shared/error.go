package shared

import (
	"errors"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/http/response"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/queue"
	"github.com/adsboard-next/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextKeyErrorPolicy 错误响应策略上下文键
const ContextKeyErrorPolicy = "error_policy"

// ErrorPolicy 错误响应策略
// ExposeDiagnostics 控制 403 是否携带可用动作等诊断；Debug 控制 500 是否携带内部错误。
type ErrorPolicy struct {
	ExposeDiagnostics bool
	Debug             bool
}

// ErrorPolicyMiddleware 将错误响应策略写入请求上下文
func ErrorPolicyMiddleware(policy ErrorPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyErrorPolicy, policy)
		c.Next()
	}
}

func errorPolicy(c *gin.Context) ErrorPolicy {
	if c == nil {
		return ErrorPolicy{}
	}
	if value, ok := c.Get(ContextKeyErrorPolicy); ok {
		if policy, ok := value.(ErrorPolicy); ok {
			return policy
		}
	}
	return ErrorPolicy{}
}

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if id := GetRequestID(c); id != "" {
		return logger.SW("request_id", id)
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, key string, err error) {
	RespondErrorWithMsg(c, code, T(key), err)
}

// RespondErrorWithMsg 返回自定义消息错误响应，并在有原始错误时记录日志。
func RespondErrorWithMsg(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Fail(c, appErr, errorPolicy(c).Debug)
}

// DenyPayload 403 响应中的诊断信息
// 字段集合固定，列表字段为空时输出 []。
type DenyPayload struct {
	Mode               string   `json:"mode"`
	UserRole           string   `json:"user_role"`
	RequiredPermission string   `json:"required_permission"`
	Action             string   `json:"action"`
	Module             string   `json:"module"`
	AvailableActions   []string `json:"available_actions"`
	Suggestion         string   `json:"suggestion"`
	Missing            []string `json:"missing"`
	Attempted          []string `json:"attempted"`
}

// NewDenyPayload 从拒绝错误构建诊断信息
func NewDenyPayload(deny *authz.DenyError) DenyPayload {
	payload := DenyPayload{
		Mode:             deny.Mode,
		AvailableActions: []string{},
		Missing:          nonNilStrings(deny.Missing),
		Attempted:        nonNilStrings(deny.Attempted),
	}
	if deny.Denial != nil {
		payload.UserRole = deny.Denial.UserRole
		payload.RequiredPermission = deny.Denial.RequiredPermission
		payload.Action = deny.Denial.Action
		payload.Module = deny.Denial.Module
		payload.AvailableActions = nonNilStrings(deny.Denial.AvailableActions)
		payload.Suggestion = deny.Denial.Suggestion
	}
	return payload
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// RespondServiceError 将授权核心与业务服务错误映射为统一响应
func RespondServiceError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	var deny *authz.DenyError
	switch {
	case errors.As(err, &deny):
		respondDenied(c, deny)
	case errors.Is(err, authz.ErrPermissionDenied):
		response.Error(c, response.CodeForbidden, T("error.forbidden"))
	case errors.Is(err, authz.ErrUnauthenticated):
		RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
	case errors.Is(err, authz.ErrResolutionFailed):
		RespondError(c, response.CodeInternal, "error.resolution_failed", err)
	case errors.Is(err, authz.ErrRoleSystemProtected):
		RespondError(c, response.CodeConflict, "error.role_system_protected", nil)
	case errors.Is(err, authz.ErrRoleInUse):
		RespondError(c, response.CodeConflict, "error.role_in_use", nil)
	case errors.Is(err, authz.ErrRoleNameTaken):
		RespondError(c, response.CodeConflict, "error.role_name_taken", nil)
	case errors.Is(err, authz.ErrLifecycleConflict):
		RespondError(c, response.CodeConflict, "error.lifecycle_conflict", nil)
	case errors.Is(err, authz.ErrRoleNotFound):
		RespondError(c, response.CodeNotFound, "error.role_not_found", nil)
	case errors.Is(err, authz.ErrPermissionNotFound):
		RespondError(c, response.CodeNotFound, "error.permission_not_found", nil)
	case errors.Is(err, authz.ErrInvalidKey):
		RespondErrorWithMsg(c, response.CodeBadRequest, T("error.permission_key_invalid"), nil)
	case errors.Is(err, authz.ErrInvalidInput):
		RespondError(c, response.CodeBadRequest, "error.bad_request", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		RespondError(c, response.CodeUnauthorized, "error.login_failed", nil)
	case errors.Is(err, service.ErrUserDisabled):
		RespondError(c, response.CodeUnauthorized, "error.user_disabled", nil)
	case errors.Is(err, service.ErrTokenRevoked):
		RespondError(c, response.CodeUnauthorized, "error.token_revoked", nil)
	case errors.Is(err, service.ErrNotFound):
		RespondError(c, response.CodeNotFound, "error.user_not_found", nil)
	case errors.Is(err, service.ErrEmailExists):
		RespondError(c, response.CodeConflict, "error.email_exists", nil)
	case errors.Is(err, service.ErrInvalidEmail):
		RespondError(c, response.CodeBadRequest, "error.email_invalid", nil)
	case errors.Is(err, service.ErrWeakPassword):
		RespondError(c, response.CodeBadRequest, "error.password_weak", nil)
	case errors.Is(err, service.ErrInvalidPassword):
		RespondError(c, response.CodeBadRequest, "error.password_old_invalid", nil)
	case errors.Is(err, service.ErrInvalidUserStatus):
		RespondError(c, response.CodeBadRequest, "error.user_status_invalid", nil)
	case errors.Is(err, queue.ErrTaskPending):
		RespondError(c, response.CodeConflict, "error.task_pending", nil)
	case errors.Is(err, queue.ErrQueueDisabled):
		RespondError(c, response.CodeUnavailable, "error.queue_disabled", nil)
	default:
		RespondError(c, response.CodeInternal, "error.internal", err)
	}
}

func respondDenied(c *gin.Context, deny *authz.DenyError) {
	msg := T("error.forbidden")
	if deny.Denial != nil && deny.Denial.Message != "" {
		msg = deny.Denial.Message
	}
	if !errorPolicy(c).ExposeDiagnostics {
		response.Error(c, response.CodeForbidden, msg)
		return
	}
	payload := NewDenyPayload(deny)
	response.ErrorWithData(c, response.CodeForbidden, msg, gin.H{"denial": payload})
}
