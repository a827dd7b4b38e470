package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"contact-guard-proxy/internal/api"
	"contact-guard-proxy/internal/config"
	"contact-guard-proxy/internal/logging"
	"contact-guard-proxy/internal/metrics"
	"contact-guard-proxy/internal/relay"
	"contact-guard-proxy/internal/security"
	"contact-guard-proxy/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("服务异常退出", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	recordStore, redisClient, err := store.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := recordStore.Close(); closeErr != nil {
			logger.Warn("关闭记录存储失败", zap.Error(closeErr))
		}
	}()

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	guards := security.NewGuardFactory(recordStore, cfg.RedisKeyPrefix,
		security.WithPolicy(policy),
		security.WithLogger(logger.Named("guard")),
	)

	var throttle api.Throttle = security.NewRequestThrottle()
	if redisClient != nil {
		logger.Info("启用 Redis 全局请求限流")
		throttle = security.NewRedisRequestThrottle(redisClient, cfg.RedisKeyPrefix, logger.Named("throttle"))
	}

	fanout := relay.NewFanout(logger.Named("relay"), cfg.SinkTimeout,
		relay.NewWhatsAppLink(cfg.WhatsAppNumber),
		relay.NewSheetsWebhook(cfg.SheetsWebhookURL),
		relay.NewEmailRelay(cfg.EmailRelayBaseURL, cfg.ContactEmail),
	)

	srv := api.NewServer(cfg, guards, throttle, fanout, metrics.NewRecorder(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Contact Guard Proxy 启动",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreBackend),
		zap.String("contact_path", cfg.ContactPath),
	)
	return srv.Run(ctx)
}
