package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRequestThrottle 使用 Redis 有序集合实现多实例共享的滑动窗口限流。
// 当 Redis 不可用时，会回退到内存限流，避免服务完全不可用。
type RedisRequestThrottle struct {
	client    *redis.Client
	keyPrefix string
	fallback  *RequestThrottle
	timeout   time.Duration
	logger    *zap.Logger
}

var slidingWindowAllowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) >= limit then
  return 0
end
redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], window)
return 1
`)

func NewRedisRequestThrottle(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisRequestThrottle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRequestThrottle{
		client:    client,
		keyPrefix: keyPrefix,
		fallback:  NewRequestThrottle(),
		timeout:   800 * time.Millisecond,
		logger:    logger,
	}
}

func (t *RedisRequestThrottle) Allow(key string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return false
	}
	if t == nil {
		return false
	}
	if t.client == nil {
		return t.fallback.Allow(key, limit, window)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	fullKey := fmt.Sprintf("%s:throttle:%s", t.keyPrefix, key)
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1
	}

	result, err := slidingWindowAllowScript.Run(
		ctx,
		t.client,
		[]string{fullKey},
		time.Now().UnixMilli(),
		windowMillis,
		limit,
		uuid.NewString(),
	).Int()
	if err != nil {
		t.logger.Warn("Redis 限流失败，回退到内存限流", zap.String("key", key), zap.Error(err))
		return t.fallback.Allow(key, limit, window)
	}
	return result == 1
}
