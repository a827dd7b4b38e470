package api

import (
	"testing"
	"time"

	"contact-guard-proxy/internal/security"
)

func TestRenderQuotaHintDuringCooldown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	next := now.Add(4*time.Minute + 10*time.Second)

	hint := renderQuotaHint(security.Report{NextAllowedSubmission: &next, RemainingSubmissions: 2}, now)
	if hint != "请等待 5 分钟后再发送新消息" {
		t.Fatalf("冷却提示不符合预期: %s", hint)
	}
}

func TestRenderQuotaHintLimitReached(t *testing.T) {
	hint := renderQuotaHint(security.Report{RemainingSubmissions: 0}, time.Now())
	if hint != "已达到发送上限，请 1 小时后再试" {
		t.Fatalf("上限提示不符合预期: %s", hint)
	}
}

func TestRetryAfterOnlyForCooldown(t *testing.T) {
	cooldown := security.Decision{Kind: security.DenyCooldown, MinutesRemaining: 3}
	if got := retryAfterSeconds(cooldown); got != 180 {
		t.Fatalf("期望 180，实际 %d", got)
	}
	if got := retryAfterSeconds(security.Decision{Kind: security.DenyRateLimit}); got != 0 {
		t.Fatalf("超限时不应给出 Retry-After，实际 %d", got)
	}
}

func TestStatusForGuardError(t *testing.T) {
	cases := map[error]int{
		security.Decision{Kind: security.DenyCooldown, Reason: "x"}.Err():  429,
		security.Decision{Kind: security.DenyRateLimit, Reason: "x"}.Err(): 429,
		security.Validation{Issue: security.IssueTooLong}.Err():             422,
		security.ErrDuplicate: 409,
		security.ErrHoneypot:  400,
	}
	for err, want := range cases {
		if got := statusForGuardError(err); got != want {
			t.Fatalf("%v: 期望 %d，实际 %d", err, want, got)
		}
	}
}
