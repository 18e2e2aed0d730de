package task

import (
	"context"
	stdErrors "errors"
	"log/slog"

	"StoryAgent-Kit/internal/action"
	"StoryAgent-Kit/internal/agent"
	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/observability/metrics"
	"StoryAgent-Kit/pkg/logger"
)

// Executor 是处理器对 Agent 的最小依赖。
type Executor interface {
	Execute(ctx context.Context, req agent.TaskRequest) (*agent.TaskResult, error)
}

// Processor 从队列领取任务交给 Agent 执行，并把结果写回存储。
// 任务只会执行一次：失败是终态，不会重新入队。
type Processor struct {
	executor Executor
	store    Store
	consumer Consumer
	workers  int
	log      *slog.Logger
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 替换处理器日志。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

// WithWorkerCount 设置并发消费数量，非正数保持默认值 1。
func WithWorkerCount(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{executor: executor, store: store, consumer: consumer, workers: 1, log: logger.Named("task")}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 阻塞消费队列，直到 ctx 取消或队列出错。返回时所有 worker 都已退出，
// 正在执行的任务已写入终态。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workers, p.handle)
}

// skippable 表示消息对应的任务不需要执行：已被删除、已结束或正由其他 worker 处理。
func skippable(err error) bool {
	return stdErrors.Is(err, ErrTaskNotFound) ||
		stdErrors.Is(err, ErrTaskCompleted) ||
		stdErrors.Is(err, ErrTaskConflict)
}

func (p *Processor) handle(ctx context.Context, msg Message) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	t, err := p.store.Claim(ctx, msg.TaskID)
	switch {
	case err == nil:
	case skippable(err):
		p.log.Debug("跳过任务", slog.String("task_id", msg.TaskID), slog.String("reason", err.Error()))
		return nil
	default:
		p.log.Error("领取任务失败", slog.Any("error", err), slog.String("task_id", msg.TaskID))
		return err
	}

	metrics.ObserveTask(string(StatusRunning))
	p.log.Debug("开始执行任务",
		slog.String("task_id", t.ID),
		slog.String("action", t.Action),
		slog.Duration("queued", msg.Waited()),
	)
	out, err := p.executor.Execute(ctx, agent.TaskRequest{ID: t.ID, Action: t.Action, Input: cloneMap(t.Input)})
	// 已领取的任务必须写入终态，否则会永远停留在 running；关停时 ctx 已取消，写回不能跟随它。
	return p.record(context.WithoutCancel(ctx), t, out, err)
}

// record 把一次执行的结局写回存储。
func (p *Processor) record(ctx context.Context, t *Task, out *agent.TaskResult, execErr error) error {
	if execErr == nil && out.Result.OK() {
		if err := p.store.MarkSucceeded(ctx, t.ID, out.Result); err != nil {
			p.log.Error("标记任务成功状态失败", slog.Any("error", err), slog.String("task_id", t.ID))
			return err
		}
		metrics.ObserveTask(string(StatusSucceeded))
		logger.Audit().Info("任务执行成功",
			slog.String("task_id", t.ID),
			slog.String("action", t.Action),
			slog.Int64("duration_ms", out.DurationMS),
		)
		return nil
	}

	code, message, result := failureOf(out, execErr)
	if err := p.store.MarkFailed(ctx, t.ID, code, message, result); err != nil {
		p.log.Error("标记任务失败状态出错", slog.Any("error", err), slog.String("task_id", t.ID))
		return err
	}
	metrics.ObserveTask(string(StatusFailed))
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", t.ID),
		slog.String("action", t.Action),
		slog.String("error", message),
		slog.String("error_code", string(code)),
	)
	return nil
}

// failureOf 提取失败的错误码与描述。执行错误不携带 Result；
// 失败的 Result 原样保留以便查询方看到完整的错误信息。
func failureOf(out *agent.TaskResult, execErr error) (xerrors.Code, string, action.Result) {
	var (
		code    xerrors.Code
		message string
		result  action.Result
	)
	if execErr != nil {
		code, message = xerrors.CodeOf(execErr), execErr.Error()
		if code == xerrors.CodeUnknown {
			code = ""
		}
	} else {
		code, message, result = xerrors.Code(out.Result.Code()), out.Result.Message(), out.Result
	}
	if code == "" {
		code = CodeTaskProcessing
	}
	return code, message, result
}
