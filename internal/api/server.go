package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"contact-guard-proxy/internal/config"
	"contact-guard-proxy/internal/metrics"
	"contact-guard-proxy/internal/relay"
	"contact-guard-proxy/internal/security"
)

// Throttle 接口层请求限流
type Throttle interface {
	Allow(key string, limit int, window time.Duration) bool
}

// Server HTTP 服务封装
type Server struct {
	cfg      config.Config
	guards   *security.GuardFactory
	throttle Throttle
	fanout   *relay.Fanout
	metrics  *metrics.Recorder
	logger   *zap.Logger
	engine   *gin.Engine
}

func NewServer(
	cfg config.Config,
	guards *security.GuardFactory,
	throttle Throttle,
	fanout *relay.Fanout,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	if logger == nil {
		logger = zap.NewNop()
	}

	server := &Server{
		cfg:      cfg,
		guards:   guards,
		throttle: throttle,
		fanout:   fanout,
		metrics:  recorder,
		logger:   logger,
		engine:   gin.New(),
	}

	// 未配置代理时 ClientIP 只取 RemoteAddr，忽略 X-Forwarded-For
	if err := server.engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error("可信代理配置无效，改为不信任任何代理", zap.Error(err))
		_ = server.engine.SetTrustedProxies(nil)
	}

	fanout.OnResult(recorder.SinkResult)

	server.engine.Use(gin.Recovery())
	server.engine.Use(requestLogger(logger))
	server.engine.Use(recorder.Middleware())
	server.engine.Use(cors(cfg.AllowedOrigin))
	server.registerRoutes()

	return server
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 阻塞直到 ctx 结束，随后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/v1/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
	})

	s.engine.POST(s.cfg.ContactPath, s.handleSubmitContact)
	s.engine.OPTIONS(s.cfg.ContactPath, preflight)
	s.engine.GET(s.cfg.ContactPath+"/quota", s.handleQuota)
	s.engine.OPTIONS(s.cfg.ContactPath+"/quota", preflight)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

func (s *Server) handleSubmitContact(c *gin.Context) {
	clientIP := c.ClientIP()
	if !s.allowRate("submit", clientIP) {
		s.metrics.GuardOutcome(metrics.OutcomeThrottled)
		writeError(c, http.StatusTooManyRequests, "提交过于频繁")
		return
	}

	if !s.validateOrigin(c) {
		s.metrics.GuardOutcome(metrics.OutcomeForbidden)
		writeError(c, http.StatusForbidden, "来源站点无效")
		return
	}

	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.metrics.GuardOutcome(metrics.OutcomeInvalidForm)
		writeError(c, http.StatusBadRequest, "请求体格式无效")
		return
	}

	guard := s.guards.For(clientIP)
	logger := s.logger.With(zap.String("client", guard.StorageKey()))

	if !security.CheckHoneypot(req.Website) {
		logger.Warn("蜜罐字段被填写，疑似机器人")
		s.metrics.GuardOutcome(metrics.OutcomeHoneypot)
		// 不向机器人透露具体原因
		writeError(c, statusForGuardError(security.ErrHoneypot), "校验失败，请重试")
		return
	}

	decision := guard.MaySubmit()
	if !decision.Allowed {
		logger.Info("提交被准入控制拒绝", zap.String("kind", string(decision.Kind)))
		if decision.Kind == security.DenyCooldown {
			s.metrics.GuardOutcome(metrics.OutcomeCooldown)
		} else {
			s.metrics.GuardOutcome(metrics.OutcomeRateLimit)
		}
		if seconds := retryAfterSeconds(decision); seconds > 0 {
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		writeErrorWith(c, statusForGuardError(decision.Err()), decision.Reason, gin.H{
			"kind":              decision.Kind,
			"minutes_remaining": decision.MinutesRemaining,
		})
		return
	}

	req.Sanitize()

	validation := guard.ValidateContent(req.Fields())
	if !validation.Valid {
		logger.Info("内容校验未通过", zap.String("issue", string(validation.Issue)), zap.String("field", validation.Field))
		s.metrics.GuardOutcome(metrics.OutcomeInvalidContent)
		writeErrorWith(c, statusForGuardError(validation.Err()), validation.Reason, gin.H{
			"field": validation.Field,
			"issue": validation.Issue,
		})
		return
	}

	if guard.IsDuplicate(req.Message) {
		logger.Info("检测到重复消息")
		s.metrics.GuardOutcome(metrics.OutcomeDuplicate)
		writeError(c, statusForGuardError(security.ErrDuplicate), "这条消息与上一条过于相似，请修改后再发送")
		return
	}

	if err := req.Validate(guard.Policy().MinMessageLength); err != nil {
		s.metrics.GuardOutcome(metrics.OutcomeInvalidForm)
		var typed apiError
		if errors.As(err, &typed) {
			writeErrorWith(c, typed.Code, typed.Message, gin.H{"field": typed.Field})
			return
		}
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.GuardOutcome(metrics.OutcomeAllowed)
	submissionID := uuid.NewString()

	// 客户端断开不应中断外发
	results := s.fanout.Dispatch(context.WithoutCancel(c.Request.Context()), req.Submission())

	guard.RecordSubmission(guard.Now())
	guard.SaveLastMessage(req.Message)

	whatsappURL := ""
	delivered := 0
	for _, result := range results {
		if result.Delivered {
			delivered++
		}
		if result.URL != "" && whatsappURL == "" {
			whatsappURL = result.URL
		}
	}

	logger.Info("提交已受理",
		zap.String("submission_id", submissionID),
		zap.Int("channels_delivered", delivered),
		zap.Int("channels_total", len(results)),
	)

	report := guard.SecurityReport()
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"submission_id": submissionID,
		"channels":      results,
		"whatsapp_url":  whatsappURL,
		"report":        report,
		"hint":          renderQuotaHint(report, guard.Now()),
	})
}

func (s *Server) handleQuota(c *gin.Context) {
	clientIP := c.ClientIP()
	if !s.allowRate("quota", clientIP) {
		writeError(c, http.StatusTooManyRequests, "查询过于频繁")
		return
	}

	guard := s.guards.For(clientIP)
	report := guard.SecurityReport()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report":  report,
		"hint":    renderQuotaHint(report, guard.Now()),
	})
}

// validateOrigin 配置了站点来源时，要求 Origin（或 Referer）与之一致
func (s *Server) validateOrigin(c *gin.Context) bool {
	allowed := strings.ToLower(strings.TrimRight(s.cfg.AllowedOrigin, "/"))
	if allowed == "" {
		return true
	}

	if origin := strings.TrimSpace(c.GetHeader("Origin")); origin != "" {
		return strings.EqualFold(strings.TrimRight(origin, "/"), allowed)
	}

	referer, err := url.Parse(strings.TrimSpace(c.GetHeader("Referer")))
	if err != nil || referer.Host == "" {
		return false
	}
	return strings.EqualFold(referer.Scheme+"://"+referer.Host, allowed)
}

func (s *Server) allowRate(action, clientIP string) bool {
	key := action + ":" + clientIP
	return s.throttle.Allow(key, s.cfg.RequestLimitPerWindow, s.cfg.RequestWindow)
}

func writeError(c *gin.Context, code int, message string) {
	writeErrorWith(c, code, message, nil)
}

func writeErrorWith(c *gin.Context, code int, message string, extra gin.H) {
	body := gin.H{
		"success": false,
		"error":   message,
	}
	for key, value := range extra {
		body[key] = value
	}
	c.JSON(code, body)
}
