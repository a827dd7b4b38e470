package security

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// RecordStore 持久化记录所需的键值存储能力
type RecordStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// SecurityRecord 单个客户端的提交历史，整体序列化为一个 JSON 值
type SecurityRecord struct {
	Submissions    []int64 `json:"submissions"`
	LastSubmission *int64  `json:"last_submission"`
	LastMessage    *string `json:"last_message"`
}

func emptyRecord() SecurityRecord {
	return SecurityRecord{Submissions: []int64{}}
}

// decodeRecord 解析失败时返回空记录，第二个返回值标记是否损坏
func decodeRecord(raw string) (SecurityRecord, bool) {
	var record SecurityRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return emptyRecord(), false
	}
	if record.Submissions == nil {
		record.Submissions = []int64{}
	}
	return record, true
}

// pruneWindow 只保留晚于 now - window 的时间戳
func pruneWindow(submissions []int64, nowMillis int64, window time.Duration) []int64 {
	cutoff := nowMillis - window.Milliseconds()
	kept := make([]int64, 0, len(submissions))
	for _, ts := range submissions {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}

func (g *AbuseGuard) load() SecurityRecord {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	raw, found, err := g.store.Get(ctx, g.storageKey)
	if err != nil {
		g.logger.Warn("读取安全记录失败，按无历史处理",
			zap.String("key", g.storageKey),
			zap.Error(err),
		)
		return emptyRecord()
	}
	if !found || raw == "" {
		return emptyRecord()
	}

	record, ok := decodeRecord(raw)
	if !ok {
		g.logger.Warn("安全记录已损坏，按无历史处理", zap.String("key", g.storageKey))
	}
	return record
}

func (g *AbuseGuard) save(record SecurityRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		g.logger.Warn("编码安全记录失败", zap.String("key", g.storageKey), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if err := g.store.Set(ctx, g.storageKey, string(data)); err != nil {
		g.logger.Warn("写入安全记录失败，本次写入丢弃", zap.String("key", g.storageKey), zap.Error(err))
	}
}
