package shared

import (
	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// gin 上下文键
const (
	ContextKeyRequestID = response.ContextKeyRequestID
	ContextKeyUserID    = "user_id"
	ContextKeyUserEmail = "user_email"
	ContextKeyActor     = "authz_actor"
)

// GetContextUint 从上下文读取 uint 值并统一处理错误响应。
func GetContextUint(c *gin.Context, key string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return 0, false
	}
	switch v := value.(type) {
	case uint:
		if v == 0 {
			RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
			return 0, false
		}
		return v, true
	case int:
		if v <= 0 {
			RespondError(c, response.CodeBadRequest, "error.user_id_invalid", nil)
			return 0, false
		}
		return uint(v), true
	default:
		RespondError(c, response.CodeInternal, "error.user_id_type_invalid", nil)
		return 0, false
	}
}

// GetRequestID 读取当前请求 ID
func GetRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(ContextKeyRequestID)
}

// SetActor 写入请求级调用方身份
func SetActor(c *gin.Context, actor authz.ActorContext) {
	c.Set(ContextKeyActor, actor)
	c.Set(ContextKeyUserID, actor.UserID)
}

// GetActor 读取请求级调用方身份
func GetActor(c *gin.Context) (authz.ActorContext, bool) {
	value, exists := c.Get(ContextKeyActor)
	if !exists {
		return authz.ActorContext{}, false
	}
	actor, ok := value.(authz.ActorContext)
	if !ok || !actor.Authenticated() {
		return authz.ActorContext{}, false
	}
	return actor, true
}

// MustActor 读取调用方身份，缺失时直接返回 401
func MustActor(c *gin.Context) (authz.ActorContext, bool) {
	actor, ok := GetActor(c)
	if !ok {
		RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return authz.ActorContext{}, false
	}
	return actor, true
}
