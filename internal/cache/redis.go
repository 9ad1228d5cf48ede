package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adsboard-next/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "ab"
	pingTimeout   = 3 * time.Second
)

// ErrDisabled Redis 未启用
var ErrDisabled = errors.New("redis cache disabled")

// redisState 当前进程共享的 Redis 连接，测试中可通过 UseClient 替换
var redisState struct {
	mu     sync.RWMutex
	client *redis.Client
	prefix string
}

// InitRedis 按配置创建 Redis 客户端并做一次连通性检查
// 连通性检查失败时客户端仍然保留，返回的错误仅用于启动日志。
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		UseClient(nil, "")
		return nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	UseClient(redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg.Prefix)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return Ping(ctx)
}

// UseClient 注入 Redis 客户端，client 为 nil 时关闭缓存
func UseClient(client *redis.Client, prefix string) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	redisState.mu.Lock()
	redisState.client = client
	redisState.prefix = prefix
	redisState.mu.Unlock()
}

// Close 关闭 Redis 客户端
func Close() error {
	redisState.mu.Lock()
	client := redisState.client
	redisState.client = nil
	redisState.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return Client() != nil
}

// Client 获取 Redis 客户端，未启用时返回 nil
func Client() *redis.Client {
	redisState.mu.RLock()
	defer redisState.mu.RUnlock()
	return redisState.client
}

// Ping 检查 Redis 连通性
func Ping(ctx context.Context) error {
	client := Client()
	if client == nil {
		return ErrDisabled
	}
	return client.Ping(ctx).Err()
}

// GetJSON 读取 JSON 缓存，未命中返回 false
func GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	client := Client()
	if client == nil {
		return false, nil
	}
	payload, err := client.Get(ctx, buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	client := Client()
	if client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return client.Set(ctx, buildKey(key), payload, ttl).Err()
}

// Del 删除缓存
func Del(ctx context.Context, key string) error {
	client := Client()
	if client == nil {
		return nil
	}
	return client.Del(ctx, buildKey(key)).Err()
}

func buildKey(key string) string {
	redisState.mu.RLock()
	prefix := redisState.prefix
	redisState.mu.RUnlock()
	if key = strings.TrimSpace(key); key == "" {
		return prefix
	}
	return prefix + ":" + key
}
