package security

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// DefaultStorageKey 单访客场景下记录使用的存储键
const DefaultStorageKey = "portfolio_form_security"

// DefaultSuspiciousPatterns 默认可疑内容规则（垃圾词与脚本注入特征）
var DefaultSuspiciousPatterns = []string{
	`viagra`,
	`casino`,
	`bitcoin`,
	`crypto`,
	`loan`,
	`click here`,
	`winner`,
	`congratulations`,
	`<script`,
	`javascript:`,
	`onclick`,
	`onerror`,
	`<iframe`,
	`eval\(`,
	`base64`,
}

// Policy 风控参数，构造后固定
type Policy struct {
	MaxSubmissionsPerHour int
	Cooldown              time.Duration
	Window                time.Duration
	MaxMessageLength      int
	MinMessageLength      int
	MaxNameLength         int
	MaxLinks              int
	RepetitionThreshold   int
	DuplicateThreshold    float64
	SuspiciousPatterns    []*regexp.Regexp
}

func DefaultPolicy() Policy {
	return Policy{
		MaxSubmissionsPerHour: 3,
		Cooldown:              10 * time.Minute,
		Window:                time.Hour,
		MaxMessageLength:      1000,
		MinMessageLength:      10,
		MaxNameLength:         100,
		MaxLinks:              2,
		RepetitionThreshold:   6,
		DuplicateThreshold:    0.8,
		SuspiciousPatterns:    MustCompilePatterns(DefaultSuspiciousPatterns),
	}
}

// CompilePatterns 编译可疑内容规则，统一按大小写不敏感匹配
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("可疑规则 %q 无效: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func MustCompilePatterns(patterns []string) []*regexp.Regexp {
	compiled, err := CompilePatterns(patterns)
	if err != nil {
		panic(err)
	}
	return compiled
}

// Option 构造 AbuseGuard 的可选参数
type Option func(*AbuseGuard)

func WithPolicy(policy Policy) Option {
	return func(g *AbuseGuard) {
		g.policy = policy
	}
}

func WithStorageKey(key string) Option {
	return func(g *AbuseGuard) {
		if key != "" {
			g.storageKey = key
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *AbuseGuard) {
		if now != nil {
			g.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *AbuseGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithStoreTimeout(timeout time.Duration) Option {
	return func(g *AbuseGuard) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}
