package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"StoryAgent-Kit/internal/action"
	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/internal/observability/alerting"
	"StoryAgent-Kit/internal/observability/metrics"
	"StoryAgent-Kit/internal/storage/mysql"
	"StoryAgent-Kit/pkg/logger"
)

// TaskRequest 描述一次动作调用。
type TaskRequest struct {
	ID     string         `json:"id,omitempty"`
	Action string         `json:"action"`
	Input  map[string]any `json:"input,omitempty"`
}

// TaskResult 汇总一次动作调用的结果。
type TaskResult struct {
	ID         string        `json:"id"`
	Action     string        `json:"action"`
	Result     action.Result `json:"result"`
	DurationMS int64         `json:"duration_ms"`
	CreatedAt  int64         `json:"created_at"`
}

// Agent 协调动作注册表、钱包上下文与调用日志，是系统的业务核心。
type Agent struct {
	registry *action.Registry
	kit      *kit.Kit
	journal  mysql.InvocationRepository
	alerter  alerting.Dispatcher
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithJournal 配置调用日志。
func WithJournal(journal mysql.InvocationRepository) Option {
	return func(a *Agent) {
		a.journal = journal
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(a *Agent) {
		a.alerter = dispatcher
	}
}

// New 创建一个 Agent。
func New(registry *action.Registry, k *kit.Kit, opts ...Option) *Agent {
	ag := &Agent{registry: registry, kit: k}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// Kit 返回 Agent 使用的钱包上下文。
func (a *Agent) Kit() *kit.Kit { return a.kit }

// Registry 返回动作注册表。
func (a *Agent) Registry() *action.Registry { return a.registry }

// Execute 执行指定动作。动作本身的失败体现在 Result 中；
// 只有 Agent 未正确初始化或请求缺少动作名称时才返回 error。
func (a *Agent) Execute(ctx context.Context, req TaskRequest) (*TaskResult, error) {
	if a.registry == nil || a.kit == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化动作注册表或钱包上下文")
	}
	name := strings.TrimSpace(req.Action)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "动作名称不能为空")
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	started := time.Now()
	result := a.registry.Invoke(ctx, a.kit, name, req.Input)
	elapsed := time.Since(started)

	out := &TaskResult{
		ID:         id,
		Action:     name,
		Result:     result,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  started.Unix(),
	}

	metrics.ObserveAction(name, result.Status(), result.Code(), elapsed)
	a.record(ctx, req.Input, out)
	a.alert(ctx, out)
	return out, nil
}

// Actions 返回所有已注册动作的描述。
func (a *Agent) Actions() []action.Info {
	if a.registry == nil {
		return nil
	}
	return a.registry.Infos()
}

// ListHistory 获取最近的调用记录。
func (a *Agent) ListHistory(ctx context.Context, limit int) ([]mysql.InvocationRecord, error) {
	if a.journal == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置调用日志")
	}
	records, err := a.journal.ListLatest(ctx, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询调用记录失败")
	}
	return records, nil
}

// record 写入调用日志；失败只记录日志，不影响调用结果。
func (a *Agent) record(ctx context.Context, input map[string]any, out *TaskResult) {
	if a.journal == nil {
		return
	}
	record := mysql.InvocationRecord{
		ID:         out.ID,
		Action:     out.Action,
		Input:      input,
		Status:     out.Result.Status(),
		Code:       out.Result.Code(),
		Message:    out.Result.Message(),
		Result:     out.Result,
		DurationMS: out.DurationMS,
		CreatedAt:  out.CreatedAt,
	}
	if err := a.journal.Save(ctx, record); err != nil {
		logger.L().Error("保存调用记录失败",
			slog.Any("error", err),
			slog.String("invoke_id", out.ID),
			slog.String("action", out.Action))
	}
}

func (a *Agent) alert(ctx context.Context, out *TaskResult) {
	code := xerrors.Code(out.Result.Code())
	if a.alerter == nil || !alerting.ShouldAlert(code) {
		return
	}
	metadata := map[string]string{}
	if hash, ok := out.Result["txHash"].(string); ok && hash != "" {
		metadata["txHash"] = hash
	}
	event := alerting.NewEvent(out.Action, out.ID, code, out.Result.Message(), metadata)
	if err := a.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("invoke_id", out.ID),
			slog.String("action", out.Action))
	}
}
