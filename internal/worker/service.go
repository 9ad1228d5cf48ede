package worker

import (
	"context"
	"errors"
	"time"

	"github.com/adsboard-next/internal/config"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/queue"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ErrNothingToRun 队列关闭且未配置清理间隔
var ErrNothingToRun = errors.New("worker has nothing to run (queue disabled and cleanup interval is zero)")

// Service 后台任务服务
// 队列启用时消费 asynq 任务；清理间隔大于零时周期性清理过期角色分配。
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
	interval time.Duration
}

// NewService 创建后台任务服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	svc := &Service{
		name:     "worker",
		consumer: consumer,
		interval: cfg.Authz.CleanupInterval(),
	}
	if cfg.Queue.Enabled {
		opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
		serverCfg.Logger = logger.S()
		svc.server = asynq.NewServer(opt, serverCfg)
		svc.mux = asynq.NewServeMux()
		consumer.Register(svc.mux)
	}
	if svc.server == nil && svc.interval <= 0 {
		return nil, ErrNothingToRun
	}
	return svc, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务，阻塞直到 ctx 结束
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.consumer == nil {
		return errors.New("worker not initialized")
	}
	if s.server != nil {
		if err := s.server.Start(s.mux); err != nil {
			return err
		}
	}
	if s.interval > 0 {
		go s.runCleanupLoop(ctx)
	}
	<-ctx.Done()
	return nil
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

func (s *Service) runCleanupLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.cleaner == nil {
		return
	}
	runOnce := func() {
		requestID := "sweep:" + uuid.NewString()
		result, err := s.consumer.cleaner.CleanupExpired(ctx, requestID)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warnw("worker_assignment_sweep_failed", "request_id", requestID, "error", err)
			}
			return
		}
		if result != nil && result.Expired > 0 {
			logger.Infow("worker_assignment_sweep_done", "request_id", requestID, "expired", result.Expired)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
