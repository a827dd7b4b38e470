package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"contact-guard-proxy/internal/security"
	"contact-guard-proxy/internal/store"
)

var clientFlag string

// reportCmd 查看某个访客的配额
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "查看访客配额",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment()
		if err != nil {
			return err
		}
		defer env.Close()

		guard := env.guards.For(clientFlag)
		return printJSON(cmd, map[string]any{
			"client":   clientFlag,
			"key":      guard.StorageKey(),
			"decision": guard.MaySubmit(),
			"report":   guard.SecurityReport(),
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "清除访客的提交记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment()
		if err != nil {
			return err
		}
		defer env.Close()

		guard := env.guards.For(clientFlag)
		guard.Clear()
		fmt.Fprintf(cmd.OutOrStdout(), "已清除 %s\n", guard.StorageKey())
		return nil
	},
}

var checkFields security.ContactFields

// checkCmd 按服务端相同的顺序清理并校验内容，不读写任何记录
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "离线校验表单内容",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment()
		if err != nil {
			return err
		}
		defer env.Close()

		policy, err := env.cfg.Policy()
		if err != nil {
			return err
		}

		fields := security.ContactFields{
			Name:    security.Sanitize(checkFields.Name),
			Email:   security.Sanitize(checkFields.Email),
			Subject: security.Sanitize(checkFields.Subject),
			Message: security.Sanitize(checkFields.Message),
		}
		validation := security.ValidateContent(policy, fields)
		if err := printJSON(cmd, map[string]any{
			"sanitized":  fields,
			"validation": validation,
		}); err != nil {
			return err
		}
		return validation.Err()
	},
}

var similarityCmd = &cobra.Command{
	Use:   "similarity <a> <b>",
	Short: "计算两段文本的相似度",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(cmd, map[string]any{
			"distance":   security.EditDistance(args[0], args[1]),
			"similarity": security.Similarity(args[0], args[1]),
		})
	},
}

var purgeOlderThan time.Duration

// purgeCmd 仅 SQLite 后端需要；Redis 依赖 TTL，文件与内存后端记录量很小
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "删除长期未更新的记录 (sqlite)",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment()
		if err != nil {
			return err
		}
		defer env.Close()

		sqliteStore, ok := env.store.(*store.SQLiteStore)
		if !ok {
			return errors.New("purge 仅支持 sqlite 存储后端")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		removed, err := sqliteStore.PurgeBefore(ctx, time.Now().Add(-purgeOlderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已删除 %d 条记录\n", removed)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{reportCmd, resetCmd} {
		cmd.Flags().StringVar(&clientFlag, "client", "", "访客标识（通常为 IP）")
		_ = cmd.MarkFlagRequired("client")
	}

	checkCmd.Flags().StringVar(&checkFields.Name, "name", "", "姓名")
	checkCmd.Flags().StringVar(&checkFields.Email, "email", "", "邮箱")
	checkCmd.Flags().StringVar(&checkFields.Subject, "subject", "", "主题")
	checkCmd.Flags().StringVar(&checkFields.Message, "message", "", "消息")

	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 24*time.Hour, "早于该时长的记录将被删除")
}
