package task

import (
	"maps"
	"slices"

	"StoryAgent-Kit/internal/action"
	xerrors "StoryAgent-Kit/internal/errors"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var knownStatuses = []Status{StatusPending, StatusRunning, StatusSucceeded, StatusFailed}

// IsValidStatus 检查状态是否为已知枚举值。
func IsValidStatus(status Status) bool {
	return slices.Contains(knownStatuses, status)
}

// Terminal 表示状态不会再变化。
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Task 是排队异步执行的一次动作调用。
// 链上写操作不可安全重放，所以任务至多执行一次，失败后不会自动重试。
type Task struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Input     map[string]any `json:"input,omitempty"`
	Status    Status         `json:"status"`
	Result    action.Result  `json:"result,omitempty"`
	LastError string         `json:"last_error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}

// Done 判断任务是否已经结束。
func (t *Task) Done() bool {
	return t != nil && t.Status.Terminal()
}

// GroupTask 是任务错误码在目录中的分组。
const GroupTask xerrors.Group = "task"

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
)

func init() {
	xerrors.RegisterGroup(GroupTask, map[xerrors.Code]xerrors.Attributes{
		CodeTaskNotFound:   {Message: "task not found", Severity: xerrors.SeverityInfo},
		CodeTaskConflict:   {Message: "task conflict", Severity: xerrors.SeverityWarning},
		CodeTaskCompleted:  {Message: "task already completed", Severity: xerrors.SeverityInfo},
		CodeTaskValidation: {Message: "task validation failed", Severity: xerrors.SeverityInfo},
		CodeTaskPublish:    {Message: "failed to publish task", Severity: xerrors.SeverityCritical, Alert: true},
		CodeTaskProcessing: {Message: "task execution failed", Severity: xerrors.SeverityWarning, Alert: true},
	})
}

// 存储层返回的哨兵错误，可用 errors.Is 判断。
var (
	ErrTaskNotFound  = xerrors.New(CodeTaskNotFound, "task not found")
	ErrTaskConflict  = xerrors.New(CodeTaskConflict, "task conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "task already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
)

// IsTaskError 判断错误链上是否带有指定的任务错误码。
func IsTaskError(err error, target xerrors.Code) bool {
	return xerrors.AttributesOf(target).Group == GroupTask && xerrors.HasCode(err, target)
}

func cloneMap[M ~map[string]any](src M) M {
	return maps.Clone(src)
}

func cloneTask(t *Task) *Task {
	c := *t
	c.Input = cloneMap(t.Input)
	c.Result = cloneMap(t.Result)
	return &c
}
