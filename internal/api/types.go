package api

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"contact-guard-proxy/internal/relay"
	"contact-guard-proxy/internal/security"
)

// ContactRequest 前端联系表单请求体。Website 为蜜罐字段，正常用户看不到。
type ContactRequest struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Subject string  `json:"subject"`
	Message string  `json:"message"`
	Website *string `json:"website"`
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Sanitize 对四个可见字段做词法清理
func (r *ContactRequest) Sanitize() {
	r.Name = security.Sanitize(r.Name)
	r.Email = security.Sanitize(r.Email)
	r.Subject = security.Sanitize(r.Subject)
	r.Message = security.Sanitize(r.Message)
}

// Validate 表单字段规则：必填、邮箱格式、姓名与消息最短长度
func (r *ContactRequest) Validate(minMessageLength int) error {
	required := []struct {
		field string
		value string
	}{
		{"name", r.Name},
		{"email", r.Email},
		{"subject", r.Subject},
		{"message", r.Message},
	}
	for _, item := range required {
		if strings.TrimSpace(item.value) == "" {
			return errField(item.field, "该字段为必填项")
		}
	}

	if !emailPattern.MatchString(r.Email) {
		return errField("email", "邮箱格式无效")
	}
	if utf8.RuneCountInString(r.Name) < 2 {
		return errField("name", "姓名至少需要 2 个字符")
	}
	if utf8.RuneCountInString(r.Message) < minMessageLength {
		return errField("message", "消息过短")
	}
	return nil
}

func (r *ContactRequest) Fields() security.ContactFields {
	return security.ContactFields{
		Name:    r.Name,
		Email:   r.Email,
		Subject: r.Subject,
		Message: r.Message,
	}
}

func (r *ContactRequest) Submission() relay.Submission {
	return relay.Submission{
		Name:    r.Name,
		Email:   r.Email,
		Subject: r.Subject,
		Message: r.Message,
	}
}

type apiError struct {
	Message string
	Field   string
	Code    int
}

func (e apiError) Error() string {
	return e.Message
}

func errField(field, message string) error {
	return apiError{Message: message, Field: field, Code: 400}
}
