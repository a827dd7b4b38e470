package security

import (
	"sync"
	"time"
)

// RequestThrottle 接口层的滑动窗口限流，按 key（动作 + IP）计数。
// 与 AbuseGuard 的提交记录相互独立，只用于保护服务本身。
type RequestThrottle struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string][]int64
}

func NewRequestThrottle() *RequestThrottle {
	return &RequestThrottle{
		now:     time.Now,
		records: make(map[string][]int64),
	}
}

func (t *RequestThrottle) Allow(key string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return false
	}

	nowMillis := t.now().UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()

	recent := pruneWindow(t.records[key], nowMillis, window)
	if len(recent) >= limit {
		t.records[key] = recent
		return false
	}

	t.records[key] = append(recent, nowMillis)
	t.cleanupExpired(nowMillis, window)
	return true
}

func (t *RequestThrottle) cleanupExpired(nowMillis int64, window time.Duration) {
	cutoff := nowMillis - window.Milliseconds()
	for key, hits := range t.records {
		if len(hits) == 0 || hits[len(hits)-1] <= cutoff {
			delete(t.records, key)
		}
	}
}
