package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ContactFields 表单中参与内容校验的字段
type ContactFields struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

var (
	linkPattern          = regexp.MustCompile(`https?://`)
	angleBracketPattern  = regexp.MustCompile(`[<>]`)
	scriptSchemePattern  = regexp.MustCompile(`(?i)javascript:`)
	inlineHandlerPattern = regexp.MustCompile(`(?i)on\w+=`)
)

// ValidateContent 按顺序检查，第一个失败项即为结果
func (g *AbuseGuard) ValidateContent(fields ContactFields) Validation {
	return ValidateContent(g.policy, fields)
}

func ValidateContent(policy Policy, fields ContactFields) Validation {
	if utf8.RuneCountInString(fields.Name) > policy.MaxNameLength {
		return Validation{
			Issue:  IssueTooLong,
			Field:  FieldName,
			Reason: fmt.Sprintf("姓名过长（最多 %d 个字符）", policy.MaxNameLength),
		}
	}

	messageLength := utf8.RuneCountInString(fields.Message)
	if messageLength > policy.MaxMessageLength {
		return Validation{
			Issue:  IssueTooLong,
			Field:  FieldMessage,
			Reason: fmt.Sprintf("消息过长（最多 %d 个字符）", policy.MaxMessageLength),
		}
	}
	if messageLength < policy.MinMessageLength {
		return Validation{
			Issue:  IssueTooShort,
			Field:  FieldMessage,
			Reason: fmt.Sprintf("消息过短（至少 %d 个字符）", policy.MinMessageLength),
		}
	}

	allText := strings.ToLower(strings.Join([]string{fields.Name, fields.Email, fields.Subject, fields.Message}, " "))
	for _, pattern := range policy.SuspiciousPatterns {
		if pattern.MatchString(allText) {
			return Validation{
				Issue:  IssueSuspiciousPattern,
				Field:  FieldGeneral,
				Reason: "检测到可疑内容，如属误判请调整措辞后重试",
			}
		}
	}

	if countLinks(fields.Message) > policy.MaxLinks {
		return Validation{
			Issue:  IssueTooManyLinks,
			Field:  FieldMessage,
			Reason: "消息中链接过多，请减少 URL 数量",
		}
	}

	if hasExcessiveRepetition(fields.Message, policy.RepetitionThreshold) {
		return Validation{
			Issue:  IssueExcessiveRepetition,
			Field:  FieldMessage,
			Reason: "消息包含可疑的连续重复字符",
		}
	}

	return Validation{Valid: true}
}

func countLinks(text string) int {
	return len(linkPattern.FindAllStringIndex(text, -1))
}

// hasExcessiveRepetition 同一字符连续出现 threshold 次及以上。换行类字符不参与计数。
func hasExcessiveRepetition(text string, threshold int) bool {
	if threshold <= 1 {
		return text != ""
	}

	var previous rune
	run := 0
	for _, r := range text {
		if isLineTerminator(r) {
			run = 0
			continue
		}
		if run > 0 && r == previous {
			run++
		} else {
			previous = r
			run = 1
		}
		if run >= threshold {
			return true
		}
	}
	return false
}

func isLineTerminator(r rune) bool {
	return r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029'
}

// Sanitize 词法层面的清理：去掉尖括号、javascript: 前缀与 onxxx= 形式的事件属性。
// 不解析 HTML，不是安全边界。
func Sanitize(input string) string {
	output := angleBracketPattern.ReplaceAllString(input, "")
	output = scriptSchemePattern.ReplaceAllString(output, "")
	output = inlineHandlerPattern.ReplaceAllString(output, "")
	return strings.TrimSpace(output)
}

// CheckHoneypot 字段缺失或为空时通过，任何非空值都视为机器人
func CheckHoneypot(value *string) bool {
	return value == nil || *value == ""
}

func CheckHoneypotValue(value string) bool {
	return CheckHoneypot(&value)
}
