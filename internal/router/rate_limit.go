package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	handlershared "github.com/adsboard-next/internal/http/handlers/shared"
	"github.com/adsboard-next/internal/http/response"
	"github.com/adsboard-next/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// 登录请求体读取上限，超出部分不参与限流 key 计算
const maxRateLimitBodyBytes = 64 << 10

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则
// BlockSeconds > 0 时，首次超限会把计数窗口延长为封禁时长。
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	BlockSeconds  int
	MessageKey    string
}

// rateLimitScript 返回 {当前计数, 剩余 TTL}
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local block = tonumber(ARGV[3])
if block > 0 and current == tonumber(ARGV[2]) + 1 then
	redis.call("EXPIRE", KEYS[1], block)
end
return {current, redis.call("TTL", KEYS[1])}
`)

func (r RateLimitRule) enabled() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

func (r RateLimitRule) key(raw string) string {
	if r.Prefix == "" {
		return raw
	}
	return r.Prefix + ":" + raw
}

func (r RateLimitRule) message(waitSeconds int) string {
	key := strings.TrimSpace(r.MessageKey)
	if key == "" {
		key = "error.rate_limited"
	}
	return handlershared.T(key, waitSeconds)
}

// hit 计数一次并返回当前计数与剩余秒数
func (r RateLimitRule) hit(ctx context.Context, client *redis.Client, key string) (int64, int, error) {
	values, err := rateLimitScript.Run(ctx, client, []string{key}, r.WindowSeconds, r.MaxRequests, r.BlockSeconds).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(values) < 2 {
		return 0, 0, errors.New("unexpected rate limit script result")
	}
	wait := int(values[1])
	if wait < 1 {
		wait = r.WindowSeconds
	}
	return values[0], wait, nil
}

// RateLimitMiddleware Redis 频率限制中间件，未配置 Redis 时放行
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || !rule.enabled() {
			c.Next()
			return
		}

		raw := ""
		if keyFunc != nil {
			raw = strings.TrimSpace(keyFunc(c))
		}
		if raw == "" {
			raw = c.ClientIP()
		}

		ctx := c.Request.Context()
		count, wait, err := rule.hit(ctx, client, rule.key(raw))
		if err != nil {
			logger.Ctx(ctx).Errorw("rate_limit_script_failed", "prefix", rule.Prefix, "error", err)
			abortWithError(c, response.CodeUnavailable, "error.rate_limit_unavailable")
			return
		}

		remaining := int64(rule.MaxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(rule.MaxRequests) {
			logger.Ctx(ctx).Warnw("rate_limit_exceeded", "prefix", rule.Prefix, "count", count, "retry_after", wait)
			c.Header("Retry-After", strconv.Itoa(wait))
			response.Error(c, response.CodeTooManyRequests, rule.message(wait))
			c.Abort()
			return
		}
		c.Next()
	}
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByIPAndJSONField 使用 JSON 字段（小写）+ IP 作为限流 key
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(peekJSONField(c, field))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

// peekJSONField 读取 JSON 请求体中的字符串字段，并恢复请求体供后续绑定
func peekJSONField(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRateLimitBodyBytes))
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), c.Request.Body))

	var payload map[string]json.RawMessage
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	var value string
	if raw, ok := payload[field]; !ok || json.Unmarshal(raw, &value) != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
