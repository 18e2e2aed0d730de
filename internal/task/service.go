package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"StoryAgent-Kit/internal/agent"
	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/observability/metrics"
	"StoryAgent-Kit/pkg/logger"
)

const defaultPollInterval = 500 * time.Millisecond

// Service 是任务的提交入口：落库、入队，并提供查询。
type Service struct {
	store    Store
	producer Producer
	known    func(name string) bool
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithActionLookup 在提交时拒绝未注册的动作。
func WithActionLookup(known func(name string) bool) ServiceOption {
	return func(s *Service) { s.known = known }
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer, opts ...ServiceOption) *Service {
	s := &Service{store: store, producer: producer}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit 创建任务并推送到队列。
// 携带 ID 的请求是幂等的：该 ID 已存在时直接返回已有任务，不会再次入队。
func (s *Service) Submit(ctx context.Context, req agent.TaskRequest) (*Task, error) {
	name, err := s.checkAction(req.Action)
	if err != nil {
		return nil, err
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	} else if existing, found, err := s.lookup(ctx, id); err != nil || found {
		return existing, err
	}

	t := &Task{ID: id, Action: name, Input: cloneMap(req.Input), Status: StatusPending}
	if err := s.store.Create(ctx, t); err != nil {
		if !stdErrors.Is(err, ErrTaskConflict) {
			return nil, err
		}
		// 并发提交同一 ID 时以先写入者为准。
		if existing, found, lookupErr := s.lookup(ctx, id); lookupErr != nil || found {
			return existing, lookupErr
		}
		return nil, err
	}
	if err := s.enqueue(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) checkAction(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	switch {
	case name == "":
		return "", xerrors.New(CodeTaskValidation, "动作名称不能为空")
	case s.known != nil && !s.known(name):
		return "", xerrors.Newf(xerrors.CodeUnknownAction, "未知动作: %s", name)
	}
	return name, nil
}

// lookup 把 ErrTaskNotFound 折叠为 found=false。
func (s *Service) lookup(ctx context.Context, id string) (*Task, bool, error) {
	t, err := s.store.Get(ctx, id)
	switch {
	case err == nil:
		return t, true, nil
	case stdErrors.Is(err, ErrTaskNotFound):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// enqueue 发布任务消息；失败时任务被标记为终态失败，避免永远停留在 pending。
func (s *Service) enqueue(ctx context.Context, t *Task) error {
	if err := s.producer.Publish(ctx, NewMessage(t)); err != nil {
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "发布任务到队列失败")
		logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("task_id", t.ID))
		if markErr := s.store.MarkFailed(ctx, t.ID, CodeTaskPublish, wrapped.Error(), nil); markErr != nil {
			logger.L().Error("记录入队失败状态出错", slog.Any("error", markErr), slog.String("task_id", t.ID))
		}
		metrics.ObserveTask(string(StatusFailed))
		return wrapped
	}
	metrics.ObserveTask(string(StatusPending))
	logger.Audit().Info("任务入队成功", slog.String("task_id", t.ID), slog.String("action", t.Action))
	return nil
}

func (s *Service) readyStore() (Store, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store, nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	store, err := s.readyStore()
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	store, err := s.readyStore()
	if err != nil {
		return nil, err
	}
	return store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的任务统计。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	store, err := s.readyStore()
	if err != nil {
		return TaskStats{}, err
	}
	return store.Stats(ctx, buildListOptions(opts))
}

// WaitUntilCompleted 轮询直到任务进入终态或 ctx 结束。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t, err := s.Get(ctx, id)
		if err != nil || t.Done() {
			return t, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 关闭存储与生产者。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}
