package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adsboard-next/internal/config"
	"github.com/adsboard-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 高优先级队列名称
	CriticalQueue = constants.QueueCritical

	cleanupTaskTimeout  = 2 * time.Minute
	cleanupTaskMaxRetry = 3
	cleanupUniqueTTL    = time.Minute
)

var (
	// ErrQueueDisabled 队列未启用
	ErrQueueDisabled = errors.New("queue disabled")
	// ErrTaskPending 相同任务仍在去重窗口内
	ErrTaskPending = errors.New("queue: task already pending")
)

// Client 队列客户端封装
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端，未启用时返回空客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{client: asynq.NewClient(buildRedisOpt(cfg))}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueAssignmentCleanup 推送过期分配清理任务，返回任务 ID
// 一分钟内重复推送会被 asynq 去重。
func (c *Client) EnqueueAssignmentCleanup(payload AssignmentCleanupPayload) (string, error) {
	if !c.Enabled() {
		return "", ErrQueueDisabled
	}
	task, err := NewAssignmentCleanupTask(payload)
	if err != nil {
		return "", err
	}
	info, err := c.client.Enqueue(task,
		asynq.Queue(CriticalQueue),
		asynq.MaxRetry(cleanupTaskMaxRetry),
		asynq.Timeout(cleanupTaskTimeout),
		asynq.Unique(cleanupUniqueTTL),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return "", ErrTaskPending
	}
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	concurrency := 5
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{DefaultQueue: 1, CriticalQueue: 2}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return buildRedisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}
	if cfg == nil {
		return opt
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	opt.Addr = fmt.Sprintf("%s:%d", host, port)
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	return opt
}
