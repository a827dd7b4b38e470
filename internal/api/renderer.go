package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"contact-guard-proxy/internal/security"
)

// renderQuotaHint 表单下方展示的配额提示
func renderQuotaHint(report security.Report, now time.Time) string {
	if report.NextAllowedSubmission != nil {
		remaining := report.NextAllowedSubmission.Sub(now)
		minutes := int((remaining.Milliseconds() + 60000 - 1) / 60000)
		if minutes < 1 {
			minutes = 1
		}
		return fmt.Sprintf("请等待 %d 分钟后再发送新消息", minutes)
	}
	if report.RemainingSubmissions == 0 {
		return "已达到发送上限，请 1 小时后再试"
	}
	return fmt.Sprintf("接下来一小时内还可以发送 %d 条消息", report.RemainingSubmissions)
}

// retryAfterSeconds 仅冷却时能给出确定的等待时间
func retryAfterSeconds(decision security.Decision) int {
	if decision.Kind != security.DenyCooldown {
		return 0
	}
	return decision.MinutesRemaining * 60
}

// statusForGuardError 风控错误到 HTTP 状态码
func statusForGuardError(err error) int {
	switch {
	case errors.Is(err, security.ErrCooldown), errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, security.ErrContentInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, security.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, security.ErrHoneypot):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
