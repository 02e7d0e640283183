// Package ratelimit 控制对上游搜索页的抓取频率。
//
// 有 Redis 时使用跨进程共享的令牌桶（API 与 worker 共用一个配额），
// 没有 Redis 时退化为进程内的 golang.org/x/time/rate 限流器。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ErrRateLimitTimeout 等待令牌期间 context 结束。
var ErrRateLimitTimeout = errors.New("rate limit wait timeout")

// DefaultKey 抓取令牌桶在 Redis 中的键。
const DefaultKey = "taobao:ratelimit:scrape"

// Limiter 是抓取前需要获取令牌的限流器。
type Limiter interface {
	Acquire(ctx context.Context) error
}

const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return {1, 0, burst}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1]) or burst
local ts = tonumber(data[2]) or now

tokens = math.min(burst, tokens + (math.max(0, now - ts) * rate) / 1000.0)

local wait_ms = 0
local allowed = tokens >= requested
if allowed then
  tokens = tokens - requested
else
  wait_ms = math.ceil((requested - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 2000.0))

return {allowed and 1 or 0, wait_ms, tokens}
`

// RedisLimiter 基于 Redis Lua 脚本的分布式令牌桶。
type RedisLimiter struct {
	rdb    *redis.Client
	key    string
	rate   float64
	burst  float64
	logger *slog.Logger
	script *redis.Script
}

// NewRedisRateLimiter 创建 Redis 令牌桶。
//
// 参数:
//
//	rdb: Redis 客户端
//	logger: 日志记录器，可为 nil
//	key: 令牌桶键名，为空时使用 DefaultKey
//	rate: 每秒补充的令牌数
//	burst: 桶容量
func NewRedisRateLimiter(rdb *redis.Client, logger *slog.Logger, key string, rate, burst float64) *RedisLimiter {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discard{}, nil))
	}
	return &RedisLimiter{
		rdb:    rdb,
		key:    key,
		rate:   rate,
		burst:  burst,
		logger: logger,
		script: redis.NewScript(tokenBucketLua),
	}
}

// Acquire 阻塞直到拿到一个令牌或 ctx 结束。
func (r *RedisLimiter) Acquire(ctx context.Context) error {
	if r == nil || r.rate <= 0 || r.burst <= 0 {
		return nil
	}

	const jitterMax = 10 * time.Millisecond
	start := time.Now()
	for {
		allowed, waitMs, err := r.tryAcquire(ctx)
		if err != nil {
			return err
		}
		if allowed {
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			return nil
		}

		wait := time.Duration(waitMs) * time.Millisecond
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		wait += time.Duration(rand.Int63n(int64(jitterMax)))
		r.logger.Debug("scrape token not available", slog.String("key", r.key), slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			metrics.RateLimitTimeoutTotal.Inc()
			return ErrRateLimitTimeout
		case <-timer.C:
		}
	}
}

func (r *RedisLimiter) tryAcquire(ctx context.Context) (bool, int64, error) {
	now := time.Now().UnixMilli()
	res, err := r.script.Run(ctx, r.rdb, []string{r.key}, r.rate, r.burst, now, 1).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit eval: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("ratelimit invalid result")
	}
	return toInt64(values[0]) == 1, toInt64(values[1]), nil
}

// LocalLimiter 进程内令牌桶，用于没有 Redis 的场景（本地开发、测试）。
type LocalLimiter struct {
	lim *rate.Limiter
}

// NewLocalLimiter 创建进程内限流器。rate 或 burst 非正数时不限流。
func NewLocalLimiter(r float64, burst int) *LocalLimiter {
	if r <= 0 || burst <= 0 {
		return &LocalLimiter{}
	}
	return &LocalLimiter{lim: rate.NewLimiter(rate.Limit(r), burst)}
}

// Acquire 等待一个令牌。
func (l *LocalLimiter) Acquire(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return nil
	}
	start := time.Now()
	err := l.lim.Wait(ctx)
	metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RateLimitTimeoutTotal.Inc()
		return ErrRateLimitTimeout
	}
	return nil
}

// New 根据是否有 Redis 选择实现。
func New(rdb *redis.Client, logger *slog.Logger, r float64, burst int) Limiter {
	if rdb == nil {
		return NewLocalLimiter(r, burst)
	}
	return NewRedisRateLimiter(rdb, logger, DefaultKey, r, float64(burst))
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
