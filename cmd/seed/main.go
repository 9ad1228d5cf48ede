package main

import (
	"context"

	"github.com/adsboard-next/internal/app"
	"github.com/adsboard-next/internal/config"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/provider"
)

// 初始化预置模块、权限、角色与默认后台账号
func main() {
	cfg := config.Load()
	cfg.Authz.BootstrapBuiltinRoles = true
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	stdLog := logger.StdLogger()

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(nil); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 容器初始化时完成预置角色引导
	container, err := provider.NewContainer(cfg)
	if err != nil {
		stdLog.Fatalf("Failed to bootstrap authorization data: %v", err)
	}
	defer container.Close()

	user, err := app.SeedDefaultUser(context.Background(), container)
	if err != nil {
		stdLog.Fatalf("Failed to seed default user: %v", err)
	}
	if user == nil {
		stdLog.Printf("Users already exist, default user skipped")
		return
	}
	stdLog.Printf("Default user ready: %s", user.Email)
}
