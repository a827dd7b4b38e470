package security

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCooldown       = errors.New("提交冷却中")
	ErrRateLimited    = errors.New("提交次数超限")
	ErrContentInvalid = errors.New("内容校验失败")
	ErrDuplicate      = errors.New("消息与上一条过于相似")
	ErrHoneypot       = errors.New("蜜罐字段被填写")
)

// DenyKind 准入拒绝类型
type DenyKind string

const (
	DenyCooldown  DenyKind = "cooldown"
	DenyRateLimit DenyKind = "rate_limit"
)

// Decision MaySubmit 的结果。Allowed 为 false 时 Kind 与 Reason 有效，
// MinutesRemaining 仅在冷却时大于 0。
type Decision struct {
	Allowed          bool     `json:"allowed"`
	Kind             DenyKind `json:"kind,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	MinutesRemaining int      `json:"minutes_remaining,omitempty"`
}

func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Kind {
	case DenyCooldown:
		return fmt.Errorf("%w: %s", ErrCooldown, d.Reason)
	default:
		return fmt.Errorf("%w: %s", ErrRateLimited, d.Reason)
	}
}

// ContentIssue 内容校验失败类型
type ContentIssue string

const (
	IssueTooLong             ContentIssue = "too_long"
	IssueTooShort            ContentIssue = "too_short"
	IssueSuspiciousPattern   ContentIssue = "suspicious_pattern"
	IssueTooManyLinks        ContentIssue = "too_many_links"
	IssueExcessiveRepetition ContentIssue = "excessive_repetition"
)

const (
	FieldName    = "name"
	FieldMessage = "message"
	FieldGeneral = "general"
)

// Validation ValidateContent 的结果
type Validation struct {
	Valid  bool         `json:"valid"`
	Issue  ContentIssue `json:"issue,omitempty"`
	Field  string       `json:"field,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s (%s)", ErrContentInvalid, v.Reason, v.Field)
}

// Report 只读的配额视图
type Report struct {
	SubmissionsInLastHour int        `json:"submissions_in_last_hour"`
	MaxSubmissionsPerHour int        `json:"max_submissions_per_hour"`
	RemainingSubmissions  int        `json:"remaining_submissions"`
	LastSubmissionTime    *time.Time `json:"last_submission_time"`
	NextAllowedSubmission *time.Time `json:"next_allowed_submission"`
	CooldownMinutes       int        `json:"cooldown_minutes"`
}
