package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const userAgent = "Contact-Guard-Proxy"

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
	}
}

// SheetsWebhook 把表单写入表格的 Apps Script Web App
type SheetsWebhook struct {
	endpoint   string
	httpClient *http.Client
}

func NewSheetsWebhook(endpoint string) *SheetsWebhook {
	return &SheetsWebhook{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: newHTTPClient(),
	}
}

func (s *SheetsWebhook) Name() string {
	return "sheets"
}

func (s *SheetsWebhook) Enabled() bool {
	return s.endpoint != ""
}

func (s *SheetsWebhook) Deliver(ctx context.Context, submission Submission) (Delivery, error) {
	payload, err := json.Marshal(submission)
	if err != nil {
		return Delivery{}, fmt.Errorf("编码表格请求失败: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Delivery{}, fmt.Errorf("创建表格请求失败: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", userAgent)

	body, err := doRequest(s.httpClient, request, "表格")
	if err != nil {
		return Delivery{}, err
	}

	// 脚本出错时仍返回 200，需要看响应里的 status
	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &reply); err == nil && strings.EqualFold(reply.Status, "error") {
		return Delivery{}, fmt.Errorf("表格脚本返回错误: %s", reply.Message)
	}

	return Delivery{}, nil
}

// EmailRelay 通过 FormSubmit 转发邮件
type EmailRelay struct {
	baseURL    string
	address    string
	httpClient *http.Client
}

func NewEmailRelay(baseURL, address string) *EmailRelay {
	return &EmailRelay{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		address:    strings.TrimSpace(address),
		httpClient: newHTTPClient(),
	}
}

func (e *EmailRelay) Name() string {
	return "email"
}

func (e *EmailRelay) Enabled() bool {
	return e.baseURL != "" && e.address != ""
}

func (e *EmailRelay) Deliver(ctx context.Context, submission Submission) (Delivery, error) {
	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)

	fields := [][2]string{
		{"_subject", renderEmailSubject(submission)},
		{"name", submission.Name},
		{"email", submission.Email},
		{"subject", submission.Subject},
		{"message", submission.Message},
		{"_captcha", "false"},
		{"_template", "table"},
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return Delivery{}, fmt.Errorf("编码邮件表单失败: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return Delivery{}, fmt.Errorf("编码邮件表单失败: %w", err)
	}

	endpoint := fmt.Sprintf("%s/ajax/%s", e.baseURL, url.PathEscape(e.address))
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buffer)
	if err != nil {
		return Delivery{}, fmt.Errorf("创建邮件请求失败: %w", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", userAgent)

	body, err := doRequest(e.httpClient, request, "邮件")
	if err != nil {
		return Delivery{}, err
	}

	var reply struct {
		Success json.RawMessage `json:"success"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &reply); err == nil && strings.Trim(string(reply.Success), `"`) == "false" {
		return Delivery{}, fmt.Errorf("邮件中继拒绝: %s", reply.Message)
	}

	return Delivery{}, nil
}

func doRequest(client *http.Client, request *http.Request, channel string) ([]byte, error) {
	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("调用%s通道失败: %w", channel, err)
	}
	defer response.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("%s通道失败: HTTP %d, body=%s", channel, response.StatusCode, string(body))
	}
	return body, nil
}
