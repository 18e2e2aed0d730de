package task

import (
	"context"

	"StoryAgent-Kit/internal/action"
	xerrors "StoryAgent-Kit/internal/errors"
)

// Store 抽象了任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// Claim 将 pending 任务切换为 running；已结束的任务返回 ErrTaskCompleted，
	// 正在执行的任务返回 ErrTaskConflict。
	Claim(ctx context.Context, id string) (*Task, error)
	MarkSucceeded(ctx context.Context, id string, result action.Result) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, result action.Result) error
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (TaskStats, error)
	Close() error
}
