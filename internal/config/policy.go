package config

import (
	"contact-guard-proxy/internal/security"
)

// Policy 由配置生成风控参数，额外规则追加在默认规则之后
func (c Config) Policy() (security.Policy, error) {
	policy := security.DefaultPolicy()
	policy.MaxSubmissionsPerHour = c.MaxSubmissionsPerHour
	policy.Cooldown = c.Cooldown()
	policy.MaxMessageLength = c.MaxMessageLength
	policy.MinMessageLength = c.MinMessageLength
	policy.MaxNameLength = c.MaxNameLength
	policy.DuplicateThreshold = c.DuplicateThreshold

	if len(c.ExtraPatterns) > 0 {
		extra, err := security.CompilePatterns(c.ExtraPatterns)
		if err != nil {
			return security.Policy{}, err
		}
		policy.SuspiciousPatterns = append(policy.SuspiciousPatterns, extra...)
	}
	return policy, nil
}
