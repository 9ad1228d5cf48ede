package shared

import (
	"fmt"
	"strings"
)

// messages 错误消息表，key 与前端约定保持稳定
var messages = map[string]string{
	"error.unauthorized":           "authentication required",
	"error.forbidden":              "permission denied",
	"error.bad_request":            "invalid request",
	"error.not_found":              "resource not found",
	"error.internal":               "internal server error",
	"error.user_id_invalid":        "invalid user id",
	"error.user_id_type_invalid":   "user id has unexpected type",
	"error.auth_header_missing":    "authorization header is missing",
	"error.auth_header_invalid":    "authorization header must be a bearer token",
	"error.token_invalid":          "token is invalid or expired",
	"error.token_revoked":          "token has been revoked, please sign in again",
	"error.jwt_secret_missing":     "jwt secret is not configured",
	"error.login_failed":           "invalid email or password",
	"error.login_too_many":         "too many login attempts, retry in %d seconds",
	"error.rate_limited":           "too many requests, retry in %d seconds",
	"error.rate_limit_unavailable": "rate limiter unavailable",
	"error.user_disabled":          "account is disabled",
	"error.user_not_found":         "user not found",
	"error.user_status_invalid":    "invalid user status",
	"error.user_status_self":       "cannot change the status of your own account",
	"error.email_exists":           "email is already in use",
	"error.email_invalid":          "invalid email",
	"error.password_old_invalid":   "current password is incorrect",
	"error.password_weak":          "password does not satisfy the password policy",
	"error.role_not_found":         "role not found",
	"error.role_name_taken":        "role name already exists",
	"error.role_system_protected":  "system roles cannot be deleted, renamed or deactivated",
	"error.role_in_use":            "role still has active assignments",
	"error.lifecycle_conflict":     "operation conflicts with current role state",
	"error.permission_not_found":   "permission not found",
	"error.permission_key_invalid": "invalid permission key",
	"error.resolution_failed":      "permission check failed, please retry",
	"error.queue_disabled":         "async queue is disabled",
	"error.task_pending":           "an identical task is already pending",
	"error.route_not_mapped":       "route has no permission mapping",
}

// T 查找消息，未登记的 key 原样返回
func T(key string, args ...interface{}) string {
	msg, ok := messages[strings.TrimSpace(key)]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
