package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AbuseGuard 客户端提交风控：冷却、每小时限额、内容校验与相似消息检测。
// 状态只存在于 store 中的单条记录里，每次读取都重新加载，每次修改整体覆盖写回。
// 存储故障不会向调用方返回错误。
type AbuseGuard struct {
	store      RecordStore
	storageKey string
	policy     Policy
	now        func() time.Time
	logger     *zap.Logger
	timeout    time.Duration
}

func NewAbuseGuard(store RecordStore, opts ...Option) *AbuseGuard {
	guard := &AbuseGuard{
		store:      store,
		storageKey: DefaultStorageKey,
		policy:     DefaultPolicy(),
		now:        time.Now,
		logger:     zap.NewNop(),
		timeout:    800 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(guard)
	}
	return guard
}

func (g *AbuseGuard) Policy() Policy {
	return g.policy
}

func (g *AbuseGuard) StorageKey() string {
	return g.storageKey
}

// Now guard 使用的时钟，调用方记录提交时应使用同一时钟
func (g *AbuseGuard) Now() time.Time {
	return g.now()
}

// MaySubmit 判断当前是否允许提交。过程中的窗口裁剪不会写回。
func (g *AbuseGuard) MaySubmit() Decision {
	record := g.load()
	nowMillis := g.now().UnixMilli()

	if record.LastSubmission != nil {
		elapsed := nowMillis - *record.LastSubmission
		cooldownMillis := g.policy.Cooldown.Milliseconds()
		if elapsed < cooldownMillis {
			minutes := ceilMinutes(cooldownMillis - elapsed)
			return Decision{
				Allowed:          false,
				Kind:             DenyCooldown,
				Reason:           fmt.Sprintf("请等待 %d 分钟后再发送下一条消息", minutes),
				MinutesRemaining: minutes,
			}
		}
	}

	recent := pruneWindow(record.Submissions, nowMillis, g.policy.Window)
	if len(recent) >= g.policy.MaxSubmissionsPerHour {
		return Decision{
			Allowed: false,
			Kind:    DenyRateLimit,
			Reason:  fmt.Sprintf("每小时最多发送 %d 条消息，请稍后再试", g.policy.MaxSubmissionsPerHour),
		}
	}

	return Decision{Allowed: true}
}

// RecordSubmission 记录一次已受理的提交。每次受理只能调用一次。
func (g *AbuseGuard) RecordSubmission(now time.Time) {
	record := g.load()
	nowMillis := now.UnixMilli()

	record.LastSubmission = &nowMillis
	record.Submissions = pruneWindow(append(record.Submissions, nowMillis), nowMillis, g.policy.Window)

	g.save(record)
}

func (g *AbuseGuard) SaveLastMessage(message string) {
	record := g.load()
	record.LastMessage = &message
	g.save(record)
}

// IsDuplicate 与上一条已受理消息比较（忽略大小写）
func (g *AbuseGuard) IsDuplicate(message string) bool {
	record := g.load()
	if record.LastMessage == nil || *record.LastMessage == "" {
		return false
	}

	similarity := Similarity(strings.ToLower(message), strings.ToLower(*record.LastMessage))
	return similarity > g.policy.DuplicateThreshold
}

func (g *AbuseGuard) SecurityReport() Report {
	record := g.load()
	now := g.now()
	nowMillis := now.UnixMilli()

	recent := pruneWindow(record.Submissions, nowMillis, g.policy.Window)
	remaining := g.policy.MaxSubmissionsPerHour - len(recent)
	if remaining < 0 {
		remaining = 0
	}

	report := Report{
		SubmissionsInLastHour: len(recent),
		MaxSubmissionsPerHour: g.policy.MaxSubmissionsPerHour,
		RemainingSubmissions:  remaining,
		CooldownMinutes:       int(g.policy.Cooldown / time.Minute),
	}

	if record.LastSubmission != nil {
		last := time.UnixMilli(*record.LastSubmission).UTC()
		report.LastSubmissionTime = &last

		cooldownMillis := g.policy.Cooldown.Milliseconds()
		if nowMillis-*record.LastSubmission < cooldownMillis {
			next := time.UnixMilli(*record.LastSubmission + cooldownMillis).UTC()
			report.NextAllowedSubmission = &next
		}
	}

	return report
}

// Clear 删除记录，用于测试与运维重置
func (g *AbuseGuard) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if err := g.store.Remove(ctx, g.storageKey); err != nil {
		g.logger.Warn("清除安全记录失败", zap.String("key", g.storageKey), zap.Error(err))
	}
}

func ceilMinutes(millis int64) int {
	return int((millis + 60000 - 1) / 60000)
}

// GuardFactory 按客户端标识生成各自独立记录的 AbuseGuard
type GuardFactory struct {
	store     RecordStore
	keyPrefix string
	opts      []Option
}

func NewGuardFactory(store RecordStore, keyPrefix string, opts ...Option) *GuardFactory {
	return &GuardFactory{
		store:     store,
		keyPrefix: keyPrefix,
		opts:      opts,
	}
}

// For 返回 clientID 对应的 guard；clientID 只以哈希形式出现在存储键中
func (f *GuardFactory) For(clientID string) *AbuseGuard {
	opts := make([]Option, 0, len(f.opts)+1)
	opts = append(opts, f.opts...)
	opts = append(opts, WithStorageKey(f.KeyFor(clientID)))
	return NewAbuseGuard(f.store, opts...)
}

func (f *GuardFactory) KeyFor(clientID string) string {
	digest := sha256.Sum256([]byte(clientID))
	hashed := hex.EncodeToString(digest[:])
	if f.keyPrefix == "" {
		return "guard:" + hashed
	}
	return f.keyPrefix + ":guard:" + hashed
}
