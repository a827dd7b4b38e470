package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 风控结果标签
const (
	OutcomeAllowed        = "allowed"
	OutcomeCooldown       = "cooldown"
	OutcomeRateLimit      = "rate_limit"
	OutcomeHoneypot       = "honeypot"
	OutcomeInvalidContent = "invalid_content"
	OutcomeDuplicate      = "duplicate"
	OutcomeInvalidForm    = "invalid_form"
	OutcomeThrottled      = "throttled"
	OutcomeForbidden      = "forbidden"
)

// Recorder 每个实例独立的指标注册表，测试中可重复创建
type Recorder struct {
	registry        *prometheus.Registry
	guardDecisions  *prometheus.CounterVec
	sinkDeliveries  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		guardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contact",
				Subsystem: "guard",
				Name:      "decisions_total",
				Help:      "Contact submissions by guard outcome",
			},
			[]string{"outcome"},
		),
		sinkDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contact",
				Subsystem: "relay",
				Name:      "deliveries_total",
				Help:      "Outbound deliveries by channel and status",
			},
			[]string{"channel", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "contact",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (r *Recorder) GuardOutcome(outcome string) {
	r.guardDecisions.WithLabelValues(outcome).Inc()
}

func (r *Recorder) SinkResult(channel, status string) {
	r.sinkDeliveries.WithLabelValues(channel, status).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Middleware 按路由模板统计耗时，避免路径参数撑爆标签基数
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
