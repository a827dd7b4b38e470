package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"contact-guard-proxy/internal/config"
)

// Store 记录存储后端
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Open 按配置选择后端。Redis 启动时不可达则回退到内存存储。
// 返回的 redis.Client 仅在 Redis 可用时非空，供接口层限流共用。
func Open(cfg config.Config, logger *zap.Logger) (Store, *redis.Client, error) {
	switch cfg.StoreBackend {
	case "memory":
		return NewMemoryStore(), nil, nil
	case "file":
		fileStore, err := NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return fileStore, nil, nil
	case "sqlite":
		sqliteStore, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqliteStore, nil, nil
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		pingErr := redisClient.Ping(ctx).Err()
		cancel()
		if pingErr != nil {
			logger.Warn("Redis 连接失败，回退到内存存储", zap.String("addr", cfg.RedisAddr), zap.Error(pingErr))
			_ = redisClient.Close()
			return NewMemoryStore(), nil, nil
		}

		logger.Info("Redis 已连接，启用共享记录存储", zap.String("addr", cfg.RedisAddr))
		return NewRedisStore(redisClient, cfg.RedisKeyPrefix, cfg.RecordTTL), redisClient, nil
	default:
		return nil, nil, fmt.Errorf("未知存储后端 %q", cfg.StoreBackend)
	}
}
