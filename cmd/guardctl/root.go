package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contact-guard-proxy/internal/config"
	"contact-guard-proxy/internal/logging"
	"contact-guard-proxy/internal/security"
	"contact-guard-proxy/internal/store"
)

var globalFlags struct {
	Verbose bool
}

// rootCmd 运维工具根命令，读取与服务端相同的配置
var rootCmd = &cobra.Command{
	Use:           "guardctl",
	Short:         "联系表单风控运维工具",
	Long:          "查询、重置访客的提交记录，离线校验表单内容与消息相似度",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "输出调试日志")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(similarityCmd)
	rootCmd.AddCommand(purgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

// environment 子命令共用的配置、日志与存储
type environment struct {
	cfg    config.Config
	logger *zap.Logger
	store  store.Store
	guards *security.GuardFactory
}

func openEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := "warn"
	if globalFlags.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		return nil, err
	}

	recordStore, _, err := store.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	policy, err := cfg.Policy()
	if err != nil {
		_ = recordStore.Close()
		return nil, err
	}

	return &environment{
		cfg:    cfg,
		logger: logger,
		store:  recordStore,
		guards: security.NewGuardFactory(recordStore, cfg.RedisKeyPrefix,
			security.WithPolicy(policy),
			security.WithLogger(logger),
		),
	}, nil
}

func (e *environment) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("关闭记录存储失败", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func printJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
