package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errServiceExited = errors.New("service exited")

// Service 可由 Runner 托管的后台服务
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner 托管一组服务：任一服务退出即整体停机
type Runner struct {
	services []Service
	onStop   func()
}

// NewRunner 创建服务运行器
func NewRunner(services ...Service) *Runner {
	return &Runner{services: services}
}

// RunWithOptions 监听系统信号并运行
func RunWithOptions(runner *Runner, opts Options) error {
	if runner == nil {
		return errors.New("runner is nil")
	}
	opts = opts.withDefaults()
	ctx := context.Background()
	if len(opts.Signals) > 0 {
		var cancel context.CancelFunc
		ctx, cancel = signal.NotifyContext(ctx, opts.Signals...)
		defer cancel()
	}
	return runner.Run(ctx, opts.ShutdownTimeout, opts.Logger)
}

// Run 启动全部服务并阻塞到 ctx 结束或任一服务退出
// 停机时按注册顺序的逆序调用 Stop，最后执行 onStop 释放共享资源。
func (r *Runner) Run(ctx context.Context, stopTimeout time.Duration, log *zap.SugaredLogger) error {
	if r == nil || len(r.services) == 0 {
		return errors.New("no services to run")
	}
	for _, svc := range r.services {
		if svc == nil {
			return errors.New("service is nil")
		}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, svc := range r.services {
		svc := svc
		group.Go(func() error {
			log.Infow("service_start", "service", svc.Name())
			err := svc.Start(groupCtx)
			log.Infow("service_exit", "service", svc.Name(), "error", err)
			if err == nil && groupCtx.Err() == nil {
				return fmt.Errorf("%w: %s", errServiceExited, svc.Name())
			}
			return err
		})
	}

	<-groupCtx.Done()
	if stopErr := r.stopAll(stopTimeout, log); stopErr != nil {
		log.Errorw("service_stop_failed", "error", stopErr)
	}
	runErr := group.Wait()
	if r.onStop != nil {
		r.onStop()
	}
	if runErr == nil || errors.Is(runErr, errServiceExited) || errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func (r *Runner) stopAll(timeout time.Duration, log *zap.SugaredLogger) error {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := len(r.services) - 1; i >= 0; i-- {
		svc := r.services[i]
		if err := svc.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
			continue
		}
		log.Infow("service_stopped", "service", svc.Name())
	}
	return errors.Join(errs...)
}
