package worker

import (
	"context"
	"fmt"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/provider"
	"github.com/adsboard-next/internal/queue"

	"github.com/hibiken/asynq"
)

// AssignmentCleaner 过期分配清理能力
type AssignmentCleaner interface {
	CleanupExpired(ctx context.Context, requestID string) (*authz.CleanupResult, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	cleaner AssignmentCleaner
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	if c == nil || c.AuthzService == nil {
		return &Consumer{}
	}
	return &Consumer{cleaner: c.AuthzService}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskAssignmentCleanup, c.handleAssignmentCleanup)
}

func (c *Consumer) handleAssignmentCleanup(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.cleaner == nil {
		logger.Warnw("worker_assignment_cleanup_skip_cleaner_nil")
		return nil
	}
	payload, err := queue.ParseAssignmentCleanupPayload(task)
	if err != nil {
		logger.Warnw("worker_assignment_cleanup_unmarshal_failed", "error", err)
		// 载荷损坏重试无意义
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	requestID := payload.RequestID
	if requestID == "" {
		if taskID, ok := asynq.GetTaskID(ctx); ok {
			requestID = "task:" + taskID
		}
	}
	result, err := c.cleaner.CleanupExpired(ctx, requestID)
	if err != nil {
		logger.Warnw("worker_assignment_cleanup_failed", "request_id", requestID, "error", err)
		return err
	}
	logger.Infow("worker_assignment_cleanup_done",
		"request_id", requestID,
		"requested_by", payload.RequestedBy,
		"expired", result.Expired,
		"batches", result.Batches,
	)
	return nil
}
