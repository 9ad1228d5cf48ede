package router

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/config"
	handlershared "github.com/adsboard-next/internal/http/handlers/shared"
	"github.com/adsboard-next/internal/http/response"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Cache-Control",
			"X-Requested-With",
			requestIDHeader,
		}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials)
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	if len(allowedOrigins) == 0 {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
// 请求 ID 同时写入 gin 上下文与 request.Context，审计记录与服务层日志共用同一个值。
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Set(handlershared.ContextKeyRequestID, requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.L()
	}
	sugar := log.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := sugar.With(
			"request_id", handlershared.GetRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if actor, ok := handlershared.GetActor(c); ok {
			entry = entry.With("user_id", actor.UserID, "role_id", actor.RoleID)
		}
		if len(c.Errors) > 0 {
			entry.Errorw("request", "errors", c.Errors.String())
			return
		}
		entry.Infow("request")
	}
}

// JWTAuthMiddleware JWT 鉴权中间件
// 校验通过后解析调用方的生效角色，并以 ActorContext 形式写入上下文。
func JWTAuthMiddleware(authSvc *service.AuthService, authzSvc *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authSvc == nil || authzSvc == nil {
			logger.Errorw("jwt_auth_dependencies_missing")
			abortWithError(c, response.CodeUnauthorized, "error.token_invalid")
			return
		}
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			abortWithError(c, response.CodeUnauthorized, "error.auth_header_missing")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortWithError(c, response.CodeUnauthorized, "error.auth_header_invalid")
			return
		}

		claims, err := authSvc.ParseJWT(strings.TrimSpace(parts[1]))
		if err != nil {
			abortWithError(c, response.CodeUnauthorized, "error.token_invalid")
			return
		}
		ctx := c.Request.Context()
		if err := authSvc.VerifyTokenState(ctx, claims); err != nil {
			switch {
			case errors.Is(err, service.ErrUserDisabled):
				abortWithError(c, response.CodeUnauthorized, "error.user_disabled")
			case errors.Is(err, service.ErrTokenRevoked):
				abortWithError(c, response.CodeUnauthorized, "error.token_revoked")
			default:
				logger.Ctx(ctx).Errorw("jwt_token_state_check_failed", "user_id", claims.UserID, "error", err)
				abortWithError(c, response.CodeUnauthorized, "error.token_invalid")
			}
			return
		}

		actor, err := authzSvc.ResolveActor(ctx, claims.UserID, claims.Email)
		if err != nil {
			handlershared.RespondServiceError(c, err)
			c.Abort()
			return
		}
		handlershared.SetActor(c, actor)
		c.Set(handlershared.ContextKeyUserEmail, claims.Email)
		c.Next()
	}
}

// RequirePermission 单权限校验中间件
func RequirePermission(svc *authz.Service, module, action string) gin.HandlerFunc {
	key := authz.MustKey(module, action)
	return authorizeMiddleware(svc, RouteRule{Mode: authz.ModeSingle, Keys: []authz.PermissionKey{key}})
}

// RequireAllPermissions 全部满足才放行
func RequireAllPermissions(svc *authz.Service, keys ...authz.PermissionKey) gin.HandlerFunc {
	return authorizeMiddleware(svc, RouteRule{Mode: authz.ModeAll, Keys: keys})
}

// RequireAnyPermission 任一满足即放行
func RequireAnyPermission(svc *authz.Service, keys ...authz.PermissionKey) gin.HandlerFunc {
	return authorizeMiddleware(svc, RouteRule{Mode: authz.ModeAny, Keys: keys})
}

// RouteAuthorizationMiddleware 按路由表统一做权限判定
// 未登记的路由一律拒绝；登记但未声明权限的路由只要求已登录。
func RouteAuthorizationMiddleware(svc *authz.Service, rules []RouteRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, ok := matchRouteRule(rules, c.Request.Method, c.Request.URL.Path)
		if !ok {
			logger.Ctx(c.Request.Context()).Warnw("authz_route_not_mapped",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			abortWithError(c, response.CodeForbidden, "error.route_not_mapped")
			return
		}
		if !authorize(c, svc, rule) {
			c.Abort()
			return
		}
		c.Next()
	}
}

func authorizeMiddleware(svc *authz.Service, rule RouteRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorize(c, svc, rule) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// authorize 执行判定并在拒绝时写出响应，返回是否放行
func authorize(c *gin.Context, svc *authz.Service, rule RouteRule) bool {
	actor, ok := handlershared.GetActor(c)
	if !ok || !actor.Authenticated() {
		handlershared.RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return false
	}
	if len(rule.Keys) == 0 {
		return true
	}
	if svc == nil {
		logger.Errorw("authz_service_unavailable", "path", c.Request.URL.Path)
		handlershared.RespondError(c, response.CodeInternal, "error.resolution_failed", nil)
		return false
	}

	ctx := c.Request.Context()
	var err error
	switch rule.Mode {
	case authz.ModeAny:
		var outcome *authz.Outcome
		if outcome, err = svc.RequireAny(ctx, actor, rule.Keys); err == nil {
			err = outcome.Err()
		}
	case authz.ModeAll:
		var outcome *authz.Outcome
		if outcome, err = svc.RequireAll(ctx, actor, rule.Keys); err == nil {
			err = outcome.Err()
		}
	default:
		key := rule.Keys[0]
		var decision *authz.Decision
		if decision, err = svc.Authorize(ctx, actor, key.Module, key.Action); err == nil {
			err = decision.Err()
		}
	}
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return false
	}
	return true
}

func abortWithError(c *gin.Context, code int, key string) {
	handlershared.RespondError(c, code, key, nil)
	c.Abort()
}
