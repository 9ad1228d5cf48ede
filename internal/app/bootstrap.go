package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/provider"
	"github.com/adsboard-next/internal/router"
	"github.com/adsboard-next/internal/worker"
)

// BuildRunner 按启动模式组装 API 与 Worker，两者共享同一个容器
func BuildRunner(opts Options) (*Runner, error) {
	opts = opts.withDefaults()
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Server.IsDebug() || cfg.Seed.AdminPassword != "" {
		if _, err := SeedDefaultUser(context.Background(), container); err != nil {
			logger.Warnw("app_seed_default_user_failed", "error", err)
		}
	}

	var services []Service
	if opts.servesAPI() {
		services = append(services, NewHTTPService(cfg.Server, router.SetupRouter(cfg, container)))
	}
	if opts.runsWorker() {
		workerService, err := worker.NewService(cfg, worker.NewConsumer(container))
		switch {
		case err == nil:
			services = append(services, workerService)
		case errors.Is(err, worker.ErrNothingToRun) && opts.Mode == ModeAll:
			logger.Warnw("app_worker_skipped", "reason", err.Error())
		default:
			container.Close()
			return nil, err
		}
	}

	if len(services) == 0 {
		container.Close()
		return nil, fmt.Errorf("no services for mode %q", opts.Mode)
	}

	runner := NewRunner(services...)
	runner.onStop = container.Close
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = opts.withDefaults()
	runner, err := BuildRunner(opts)
	if err != nil {
		return err
	}
	opts.Logger.Infow("app_start", "addr", opts.Config.Server.Addr(), "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
