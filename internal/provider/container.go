package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/cache"
	"github.com/adsboard-next/internal/config"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/queue"
	"github.com/adsboard-next/internal/repository"
	"github.com/adsboard-next/internal/service"

	"gorm.io/gorm"
)

const bootstrapTimeout = 30 * time.Second

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client

	// Repositories
	UserRepo          repository.UserRepository
	AuthzRepo         repository.AuthzRepository
	AuthzAuditLogRepo repository.AuthzAuditLogRepository

	// Services
	AuthzService      *authz.Service
	AuthService       *service.AuthService
	UserService       *service.UserService
	AuthzAuditService *service.AuthzAuditService
}

// NewContainer 初始化容器（使用全局 models.DB）
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithDB(cfg, models.DB)
}

// NewContainerWithDB 使用指定数据库初始化容器
func NewContainerWithDB(cfg *config.Config, db *gorm.DB) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient = &queue.Client{}
	}

	c := &Container{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
	}
	c.initRepositories()
	if err := c.initServices(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) initRepositories() {
	c.UserRepo = repository.NewUserRepository(c.DB)
	c.AuthzRepo = repository.NewAuthzRepository(c.DB)
	c.AuthzAuditLogRepo = repository.NewAuthzAuditLogRepository(c.DB)
}

func (c *Container) initServices() error {
	authzService, err := authz.NewService(c.AuthzRepo, c.AuthzAuditLogRepo, authz.Options{
		BypassLevel:    c.Config.Authz.BypassLevel,
		SuperRoleNames: c.Config.Authz.SuperRoleNames,
		CleanupBatch:   c.Config.Authz.CleanupBatchSize,
	})
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		return err
	}
	c.AuthzService = authzService

	if c.Config.Authz.BootstrapBuiltinRoles {
		ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
		defer cancel()
		if err := c.AuthzService.BootstrapBuiltinRoles(ctx); err != nil {
			logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
			return err
		}
	}

	c.AuthService = service.NewAuthService(c.Config, c.UserRepo)
	c.UserService = service.NewUserService(c.UserRepo, c.AuthzService, c.AuthService)
	c.AuthzAuditService = service.NewAuthzAuditService(c.AuthzAuditLogRepo)
	return nil
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
