package task

import (
	"context"
	"fmt"
	"time"

	"clarity-mcp/common"
	"clarity-mcp/internal/genai/aurasr"

	"github.com/sirupsen/logrus"
)

// 轮询默认值
const (
	DefaultMaxAttempts     = 120
	DefaultIntervalSeconds = 2

	// 轮询间隔上限，超出时按上限等待
	MaxIntervalSeconds = 3600
)

// QueryClient 查询任务所需的能力
type QueryClient interface {
	QueryEnhanceTask(ctx context.Context, sessionID string) (*aurasr.TaskStatus, error)
}

// QueryOptions 单次查询调用的参数。
// 关闭轮询时只查询一次；MaxAttempts 非正数时使用默认值，IntervalSeconds 负数视为 0，超过 MaxIntervalSeconds 时取上限。
type QueryOptions struct {
	SessionID       string
	EnablePolling   bool
	MaxAttempts     int
	IntervalSeconds int
}

func (o QueryOptions) budget() int {
	if !o.EnablePolling {
		return 1
	}
	if o.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return o.MaxAttempts
}

func (o QueryOptions) interval() time.Duration {
	switch {
	case o.IntervalSeconds <= 0:
		return 0
	case o.IntervalSeconds > MaxIntervalSeconds:
		return MaxIntervalSeconds * time.Second
	}
	return time.Duration(o.IntervalSeconds) * time.Second
}

// QueryOutput 查询结果。任务失败、超时、网络错误都以 Status 表达，不作为 error 返回。
type QueryOutput struct {
	Status      string                 `json:"status"`
	ImageURL    string                 `json:"image_url"`
	Result      map[string]interface{} `json:"result"`
	IsCompleted bool                   `json:"is_completed"`
}

// verdict 单次查询的分类
type verdict int

const (
	verdictInProgress verdict = iota
	verdictSucceeded
	verdictFailed
)

// classify 只有拿到图片 URL 且状态不是进行中才算完成；completed 先于 URL 出现时仍视为进行中
func classify(status *aurasr.TaskStatus) verdict {
	if status.ImageURL != "" && !isInProgress(status.State) {
		return verdictSucceeded
	}
	if status.State == aurasr.StatusFailed || status.State == aurasr.StatusError {
		return verdictFailed
	}
	return verdictInProgress
}

func isInProgress(state string) bool {
	switch state {
	case aurasr.StatusProcessing, aurasr.StatusPending, aurasr.StatusQueued:
		return true
	}
	return false
}

func newOutput(status *aurasr.TaskStatus, v verdict) *QueryOutput {
	out := &QueryOutput{
		Status:      status.State,
		ImageURL:    status.ImageURL,
		Result:      status.Raw,
		IsCompleted: v == verdictSucceeded,
	}
	if v == verdictFailed {
		out.ImageURL = ""
	}
	return out
}

func errorOutput(status, message string) *QueryOutput {
	return &QueryOutput{
		Status: status,
		Result: map[string]interface{}{"error": message},
	}
}

// Poller 查询任务状态，可选地在预算内轮询直到终态
type Poller struct {
	client  QueryClient
	sleeper Sleeper

	mirror   ImageMirror
	store    ResultStore
	storeTTL time.Duration
}

// PollerOption Poller 可选配置
type PollerOption func(*Poller)

// WithSleeper 替换轮询间隔的等待实现
func WithSleeper(s Sleeper) PollerOption {
	return func(p *Poller) {
		p.sleeper = s
	}
}

// WithMirror 完成后将结果图片转存，替换返回的 image_url
func WithMirror(m ImageMirror) PollerOption {
	return func(p *Poller) {
		p.mirror = m
	}
}

// WithResultStore 缓存成功/失败的终态结果，后续查询直接返回
func WithResultStore(s ResultStore, ttl time.Duration) PollerOption {
	return func(p *Poller) {
		p.store = s
		p.storeTTL = ttl
	}
}

// NewPoller 创建 Poller
func NewPoller(client QueryClient, opts ...PollerOption) *Poller {
	p := &Poller{
		client:  client,
		sleeper: timerSleeper{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll 查询任务结果。
// 只有 ctx 被取消时才返回 error；其余情况（成功、失败、超时、网络错误）都返回 QueryOutput。
func (p *Poller) Poll(ctx context.Context, opts QueryOptions, progress ProgressReporter) (*QueryOutput, error) {
	progress = orNop(progress)
	logger := common.WithField("session_id", opts.SessionID)

	if out, ok := p.loadTerminal(ctx, opts.SessionID, logger); ok {
		if opts.EnablePolling {
			progress.Report(ctx, 100)
		}
		return out, nil
	}

	out, v, err := p.run(ctx, opts, progress, logger)
	if err != nil {
		return nil, err
	}

	if v == verdictSucceeded {
		p.mirrorImage(ctx, out, logger)
	}
	if v != verdictInProgress {
		p.saveTerminal(ctx, opts.SessionID, out, logger)
	}
	return out, nil
}

func (p *Poller) run(ctx context.Context, opts QueryOptions, progress ProgressReporter, logger *logrus.Entry) (*QueryOutput, verdict, error) {
	budget := opts.budget()
	interval := opts.interval()

	if opts.EnablePolling {
		logger.WithFields(logrus.Fields{
			"max_attempts": budget,
			"interval":     interval.String(),
		}).Info("Polling AuraSR enhance task")
	}

	for attempt := 1; attempt <= budget; attempt++ {
		if opts.EnablePolling {
			progress.Report(ctx, attempt*100/budget)
		}

		status, err := p.client.QueryEnhanceTask(ctx, opts.SessionID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, verdictInProgress, ctxErr
			}

			message := fmt.Sprintf("Failed to query result: %v", err)
			logger.WithError(err).WithField("attempt", attempt).Warn("AuraSR query attempt failed")

			if !opts.EnablePolling || attempt >= budget {
				return errorOutput(aurasr.StatusError, message), verdictInProgress, nil
			}
			if err := p.sleeper.Sleep(ctx, interval); err != nil {
				return nil, verdictInProgress, err
			}
			continue
		}

		v := classify(status)
		logger.WithFields(logrus.Fields{
			"attempt":   attempt,
			"state":     status.State,
			"image_url": status.ImageURL,
		}).Debug("AuraSR task state")

		if v != verdictInProgress || !opts.EnablePolling {
			if v == verdictSucceeded && opts.EnablePolling {
				progress.Report(ctx, 100)
			}
			logger.WithFields(logrus.Fields{
				"attempts":     attempt,
				"state":        status.State,
				"is_completed": v == verdictSucceeded,
			}).Info("AuraSR query finished")
			return newOutput(status, v), v, nil
		}

		if attempt < budget {
			if err := p.sleeper.Sleep(ctx, interval); err != nil {
				return nil, verdictInProgress, err
			}
		}
	}

	logger.WithField("max_attempts", budget).Warn("AuraSR polling timed out")
	return errorOutput(aurasr.StatusTimeout, fmt.Sprintf("Polling timeout after %d attempts", budget)), verdictInProgress, nil
}

func (p *Poller) mirrorImage(ctx context.Context, out *QueryOutput, logger *logrus.Entry) {
	if p.mirror == nil {
		return
	}

	mirrored, err := p.mirror.Mirror(ctx, out.ImageURL)
	if err != nil {
		// 转存失败不影响结果，保留原始 URL
		logger.WithError(err).WithField("image_url", out.ImageURL).Warn("Failed to mirror enhanced image, keeping original URL")
		return
	}
	out.ImageURL = mirrored
}
