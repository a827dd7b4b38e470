package relay

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// WhatsAppLink 生成预填消息的 wa.me 深链，由浏览器打开，不发起网络请求
type WhatsAppLink struct {
	number string
}

func NewWhatsAppLink(number string) *WhatsAppLink {
	return &WhatsAppLink{number: digitsOnly(number)}
}

func (w *WhatsAppLink) Name() string {
	return "whatsapp"
}

func (w *WhatsAppLink) Enabled() bool {
	return w.number != ""
}

func (w *WhatsAppLink) Deliver(_ context.Context, submission Submission) (Delivery, error) {
	return Delivery{URL: w.Link(submission)}, nil
}

func (w *WhatsAppLink) Link(submission Submission) string {
	return fmt.Sprintf("https://wa.me/%s?text=%s", w.number, encodeURIComponent(renderWhatsAppMessage(submission)))
}

func renderWhatsAppMessage(submission Submission) string {
	builder := &strings.Builder{}
	builder.WriteString("*Nova mensagem do Portfólio!*\n\n")
	builder.WriteString(fmt.Sprintf("*Nome:* %s\n", submission.Name))
	builder.WriteString(fmt.Sprintf("*Email:* %s\n", submission.Email))
	builder.WriteString(fmt.Sprintf("*Assunto:* %s\n\n", submission.Subject))
	builder.WriteString("*Mensagem:*\n")
	builder.WriteString(submission.Message)
	return builder.String()
}

func renderEmailSubject(submission Submission) string {
	return fmt.Sprintf("[Portfólio] %s", submission.Subject)
}

// componentUnescaper 浏览器 encodeURIComponent 保留的字符
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%2A", "*",
	"%27", "'",
	"%28", "(",
	"%29", ")",
)

// encodeURIComponent 与浏览器同名函数输出一致
func encodeURIComponent(value string) string {
	return componentUnescaper.Replace(url.QueryEscape(value))
}

func digitsOnly(value string) string {
	builder := &strings.Builder{}
	for _, r := range value {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
