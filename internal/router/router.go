package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/adsboard-next/internal/cache"
	"github.com/adsboard-next/internal/config"
	adminhandlers "github.com/adsboard-next/internal/http/handlers/admin"
	handlershared "github.com/adsboard-next/internal/http/handlers/shared"
	"github.com/adsboard-next/internal/http/response"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ab"
	}
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		BlockSeconds:  cfg.Security.LoginRateLimit.BlockSeconds,
		MessageKey:    "error.login_too_many",
	}
	rules := AdminRouteRules()

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))
	r.Use(handlershared.ErrorPolicyMiddleware(handlershared.ErrorPolicy{
		ExposeDiagnostics: cfg.Authz.ExposeDiagnostics,
		Debug:             cfg.Server.IsDebug(),
	}))

	apiV1 := r.Group("/api/v1")
	{
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权）
			admin.POST("/login", RateLimitMiddleware(cache.Client(), loginRule, KeyByIPAndJSONField("email")), adminHandler.Login)

			// 需要鉴权的接口，权限要求见 AdminRouteRules
			authorized := admin.Group("")
			authorized.Use(JWTAuthMiddleware(c.AuthService, c.AuthzService), RouteAuthorizationMiddleware(c.AuthzService, rules))
			{
				// 当前用户
				authorized.GET("/authz/me", adminHandler.GetAuthzMe)
				authorized.POST("/authz/check", adminHandler.CheckAuthzPermissions)
				authorized.PUT("/auth/password", adminHandler.ChangePassword)

				// 角色与授权
				authorized.GET("/authz/roles", adminHandler.ListAuthzRoles)
				authorized.POST("/authz/roles", adminHandler.CreateAuthzRole)
				authorized.GET("/authz/roles/:id", adminHandler.GetAuthzRole)
				authorized.PUT("/authz/roles/:id", adminHandler.UpdateAuthzRole)
				authorized.DELETE("/authz/roles/:id", adminHandler.DeleteAuthzRole)
				authorized.GET("/authz/roles/:id/permissions", adminHandler.ListAuthzRolePermissions)
				authorized.POST("/authz/roles/:id/permissions", adminHandler.GrantAuthzRolePermission)
				authorized.DELETE("/authz/roles/:id/permissions/:permission_id", adminHandler.RevokeAuthzRolePermission)

				// 模块与权限目录
				authorized.GET("/authz/modules", adminHandler.ListAuthzModules)
				authorized.GET("/authz/permissions", adminHandler.ListAuthzPermissions)
				authorized.POST("/authz/permissions", adminHandler.EnsureAuthzPermission)
				authorized.PUT("/authz/permissions/:id/status", adminHandler.UpdateAuthzPermissionStatus)
				authorized.GET("/authz/routes", func(ctx *gin.Context) {
					response.Success(ctx, buildRoutePermissionCatalog(r, rules))
				})

				// 维护与审计
				authorized.POST("/authz/assignments/cleanup", adminHandler.CleanupExpiredAssignments)
				authorized.GET("/authz/audit-logs", adminHandler.ListAuthzAuditLogs)

				// 用户管理
				authorized.GET("/users", adminHandler.ListUsers)
				authorized.POST("/users", adminHandler.CreateUser)
				authorized.PUT("/users/status", adminHandler.BatchUpdateUserStatus)
				authorized.GET("/users/:id", adminHandler.GetUser)
				authorized.GET("/users/:id/roles", adminHandler.ListUserRoles)
				authorized.POST("/users/:id/roles", adminHandler.AssignUserRole)
				authorized.DELETE("/users/:id/roles/:role_id", adminHandler.RevokeUserRole)
			}
		}
	}

	// 健康检查：数据库必须可用，Redis 未启用时不影响结果
	r.GET("/health", func(ctx *gin.Context) {
		status, code := "ok", http.StatusOK
		checks := gin.H{"database": "ok", "redis": "disabled"}
		if err := pingDatabase(ctx, c); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			checks["database"] = err.Error()
		}
		if err := cache.Ping(ctx.Request.Context()); err == nil {
			checks["redis"] = "ok"
		} else if !errors.Is(err, cache.ErrDisabled) {
			checks["redis"] = err.Error()
		}
		ctx.JSON(code, gin.H{"status": status, "checks": checks})
	})

	return r
}

func pingDatabase(ctx *gin.Context, c *provider.Container) error {
	if c == nil || c.DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx.Request.Context())
}
