package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Submission 已通过风控的联系表单内容
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Delivery 单个通道的投递结果；URL 仅深链通道填写
type Delivery struct {
	URL string
}

// Sink 外发通道
type Sink interface {
	Name() string
	Enabled() bool
	Deliver(ctx context.Context, submission Submission) (Delivery, error)
}

// Result 返回给前端的通道状态
type Result struct {
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Skipped   bool   `json:"skipped,omitempty"`
	URL       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

func (r Result) Status() string {
	switch {
	case r.Skipped:
		return StatusSkipped
	case r.Delivered:
		return StatusDelivered
	default:
		return StatusFailed
	}
}

// Fanout 依次尝试所有通道，单个通道失败不影响其余通道
type Fanout struct {
	sinks    []Sink
	timeout  time.Duration
	logger   *zap.Logger
	observer func(channel, status string)
}

func NewFanout(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fanout{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
	}
}

// OnResult 注册结果回调（用于指标统计）
func (f *Fanout) OnResult(observer func(channel, status string)) {
	f.observer = observer
}

func (f *Fanout) Dispatch(ctx context.Context, submission Submission) []Result {
	results := make([]Result, 0, len(f.sinks))
	for _, sink := range f.sinks {
		result := f.deliver(ctx, sink, submission)
		if f.observer != nil {
			f.observer(result.Channel, result.Status())
		}
		results = append(results, result)
	}
	return results
}

func (f *Fanout) deliver(ctx context.Context, sink Sink, submission Submission) Result {
	result := Result{Channel: sink.Name()}
	if !sink.Enabled() {
		f.logger.Warn("通道未配置，跳过", zap.String("channel", sink.Name()))
		result.Skipped = true
		return result
	}

	sinkCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	delivery, err := sink.Deliver(sinkCtx, submission)
	if err != nil {
		f.logger.Warn("通道投递失败",
			zap.String("channel", sink.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		result.Error = err.Error()
		return result
	}

	f.logger.Info("通道投递成功",
		zap.String("channel", sink.Name()),
		zap.Duration("elapsed", time.Since(start)),
	)
	result.Delivered = true
	result.URL = delivery.URL
	return result
}
