package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contact-guard-proxy/internal/config"
	"contact-guard-proxy/internal/metrics"
	"contact-guard-proxy/internal/relay"
	"contact-guard-proxy/internal/security"
	"contact-guard-proxy/internal/store"
)

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time { return c.current }

type testEnv struct {
	server      *Server
	clock       *testClock
	store       *store.MemoryStore
	sheetsCalls *int32
	emailCalls  *int32
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	var sheetsCalls, emailCalls int32
	sheets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&sheetsCalls, 1)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	t.Cleanup(sheets.Close)
	email := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&emailCalls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(email.Close)

	cfg := config.Defaults()
	cfg.StoreBackend = "memory"
	cfg.SheetsWebhookURL = sheets.URL
	cfg.EmailRelayBaseURL = email.URL
	cfg.ContactEmail = "owner@example.com"
	cfg.WhatsAppNumber = "5585988528359"
	if mutate != nil {
		mutate(&cfg)
	}

	clock := &testClock{current: time.UnixMilli(1_700_000_000_000)}
	memory := store.NewMemoryStore()
	policy, err := cfg.Policy()
	require.NoError(t, err)

	guards := security.NewGuardFactory(memory, "test", security.WithPolicy(policy), security.WithClock(clock.Now))
	fanout := relay.NewFanout(zap.NewNop(), time.Second,
		relay.NewWhatsAppLink(cfg.WhatsAppNumber),
		relay.NewSheetsWebhook(cfg.SheetsWebhookURL),
		relay.NewEmailRelay(cfg.EmailRelayBaseURL, cfg.ContactEmail),
	)

	server := NewServer(cfg, guards, security.NewRequestThrottle(), fanout, metrics.NewRecorder(), zap.NewNop())

	return &testEnv{
		server:      server,
		clock:       clock,
		store:       memory,
		sheetsCalls: &sheetsCalls,
		emailCalls:  &emailCalls,
	}
}

func (e *testEnv) post(t *testing.T, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, "/v1/contact", bytes.NewReader(payload))
	request.Header.Set("Content-Type", "application/json")
	request.RemoteAddr = "203.0.113.9:5555"
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	return e.do(t, request)
}

func (e *testEnv) do(t *testing.T, request *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	recorder := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(recorder, request)

	decoded := map[string]any{}
	if recorder.Body.Len() > 0 && strings.HasPrefix(recorder.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	}
	return recorder, decoded
}

func validBody() map[string]any {
	return map[string]any{
		"name":    "Ana Souza",
		"email":   "ana@example.com",
		"subject": "Projeto",
		"message": "Gostaria de conversar sobre um projeto.",
		"website": "",
	}
}

func TestSubmitContactFansOutAndRecords(t *testing.T) {
	env := newTestEnv(t, nil)

	recorder, body := env.post(t, validBody(), nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["submission_id"])
	assert.True(t, strings.HasPrefix(body["whatsapp_url"].(string), "https://wa.me/5585988528359?text="))
	assert.EqualValues(t, 1, atomic.LoadInt32(env.sheetsCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(env.emailCalls))

	channels := body["channels"].([]any)
	require.Len(t, channels, 3)
	assert.Equal(t, "email", channels[2].(map[string]any)["channel"])
	assert.Equal(t, false, channels[2].(map[string]any)["delivered"], "邮件失败也要记录提交")

	report := body["report"].(map[string]any)
	assert.EqualValues(t, 2, report["remaining_submissions"])
	assert.Equal(t, 1, env.store.Len())
}

func TestSubmitContactCooldownOnSecondAttempt(t *testing.T) {
	env := newTestEnv(t, nil)

	recorder, _ := env.post(t, validBody(), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	second := validBody()
	second["message"] = "Uma mensagem completamente diferente agora."
	recorder, body := env.post(t, second, nil)
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, string(security.DenyCooldown), body["kind"])
	assert.EqualValues(t, 10, body["minutes_remaining"])
	assert.Equal(t, "600", recorder.Header().Get("Retry-After"))
}

func TestSubmitContactIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, nil)

	recorder, _ := env.post(t, validBody(), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	for _, forwarded := range []string{"10.0.0.1", "10.0.0.2"} {
		body := validBody()
		body["message"] = "Outra mensagem vinda de " + forwarded
		recorder, decoded := env.post(t, body, map[string]string{"X-Forwarded-For": forwarded})
		require.Equal(t, http.StatusTooManyRequests, recorder.Code, forwarded)
		assert.Equal(t, string(security.DenyCooldown), decoded["kind"])
	}
	assert.Equal(t, 1, env.store.Len())
}

func TestSubmitContactHonorsForwardedForFromTrustedProxy(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.TrustedProxies = []string{"203.0.113.9"}
	})

	first, _ := env.post(t, validBody(), map[string]string{"X-Forwarded-For": "198.51.100.1"})
	require.Equal(t, http.StatusOK, first.Code)

	body := validBody()
	body["message"] = "Mensagem de outro visitante atrás do proxy."
	second, _ := env.post(t, body, map[string]string{"X-Forwarded-For": "198.51.100.2"})
	assert.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Equal(t, 2, env.store.Len())
}

func TestSubmitContactRateLimitWithinHour(t *testing.T) {
	env := newTestEnv(t, nil)
	messages := []string{
		"Primeira mensagem sobre um projeto web.",
		"Segunda pergunta sobre disponibilidade.",
		"Terceiro contato, agora sobre orçamento.",
	}
	for _, message := range messages {
		body := validBody()
		body["message"] = message
		recorder, _ := env.post(t, body, nil)
		require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
		env.clock.current = env.clock.current.Add(11 * time.Minute)
	}

	body := validBody()
	body["message"] = "Quarta tentativa dentro da mesma hora."
	recorder, decoded := env.post(t, body, nil)
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, string(security.DenyRateLimit), decoded["kind"])
	assert.Empty(t, recorder.Header().Get("Retry-After"))
}

func TestSubmitContactHoneypot(t *testing.T) {
	env := newTestEnv(t, nil)
	body := validBody()
	body["website"] = "http://spam"

	recorder, _ := env.post(t, body, nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.EqualValues(t, 0, atomic.LoadInt32(env.sheetsCalls))
	assert.Equal(t, 0, env.store.Len())
}

func TestSubmitContactMissingHoneypotPasses(t *testing.T) {
	env := newTestEnv(t, nil)
	body := validBody()
	delete(body, "website")

	recorder, _ := env.post(t, body, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestSubmitContactSuspiciousContent(t *testing.T) {
	env := newTestEnv(t, nil)
	body := validBody()
	body["subject"] = "VIAGRA barato"

	recorder, decoded := env.post(t, body, nil)
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.Equal(t, security.FieldGeneral, decoded["field"])
	assert.Equal(t, string(security.IssueSuspiciousPattern), decoded["issue"])
	assert.Equal(t, 0, env.store.Len())
}

func TestSubmitContactSanitizesBeforeValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	body := validBody()
	body["message"] = "  <b>Olá</b>, gostaria de um orçamento.  "

	recorder, _ := env.post(t, body, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	guard := env.server.guards.For("203.0.113.9")
	assert.True(t, guard.IsDuplicate("bOlá/b, gostaria de um orçamento."))
}

func TestSubmitContactDuplicateAfterCooldown(t *testing.T) {
	env := newTestEnv(t, nil)

	recorder, _ := env.post(t, validBody(), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	env.clock.current = env.clock.current.Add(11 * time.Minute)
	body := validBody()
	body["message"] = "Gostaria de conversar sobre um projeto!"
	recorder, _ = env.post(t, body, nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestSubmitContactFormRules(t *testing.T) {
	env := newTestEnv(t, nil)

	body := validBody()
	body["email"] = "not-an-email"
	recorder, decoded := env.post(t, body, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "email", decoded["field"])

	body = validBody()
	body["subject"] = "   "
	recorder, decoded = env.post(t, body, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "subject", decoded["field"])

	body = validBody()
	body["name"] = "A"
	recorder, decoded = env.post(t, body, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "name", decoded["field"])
}

func TestSubmitContactRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t, nil)
	request := httptest.NewRequest(http.MethodPost, "/v1/contact", strings.NewReader("{"))
	request.Header.Set("Content-Type", "application/json")

	recorder, _ := env.do(t, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSubmitContactOriginCheck(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.AllowedOrigin = "https://portfolio.example"
	})

	recorder, _ := env.post(t, validBody(), map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder, _ = env.post(t, validBody(), map[string]string{"Referer": "https://portfolio.example/contato"})
	assert.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubmitContactThrottle(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RequestLimitPerWindow = 1
	})

	body := validBody()
	body["website"] = "bot"
	recorder, _ := env.post(t, body, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder, _ = env.post(t, validBody(), nil)
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
}

func TestQuotaEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	request := httptest.NewRequest(http.MethodGet, "/v1/contact/quota", nil)
	request.RemoteAddr = "203.0.113.9:5555"
	recorder, body := env.do(t, request)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "接下来一小时内还可以发送 3 条消息", body["hint"])

	posted, _ := env.post(t, validBody(), nil)
	require.Equal(t, http.StatusOK, posted.Code)

	request = httptest.NewRequest(http.MethodGet, "/v1/contact/quota", nil)
	request.RemoteAddr = "203.0.113.9:5555"
	recorder, body = env.do(t, request)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "请等待 10 分钟后再发送新消息", body["hint"])
	report := body["report"].(map[string]any)
	assert.NotNil(t, report["next_allowed_submission"])
}

func TestPreflightAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	request := httptest.NewRequest(http.MethodOptions, "/v1/contact", nil)
	request.Header.Set("Origin", "https://portfolio.example")
	recorder, _ := env.do(t, request)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))

	recorder, body := env.do(t, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, recorder.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	body := validBody()
	body["website"] = "bot"
	env.post(t, body, nil)

	recorder := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `contact_guard_decisions_total{outcome="honeypot"} 1`)
}
