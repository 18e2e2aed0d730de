package task

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"StoryAgent-Kit/internal/action"
	xerrors "StoryAgent-Kit/internal/errors"
)

// MemoryStore 把任务保存在进程内，适用于单机部署与测试。读写都返回副本。
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task), now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, t *Task) error {
	switch {
	case t == nil:
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	case t.ID == "":
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[t.ID]; exists {
		return ErrTaskConflict
	}
	now := m.now().Unix()
	t.UpdatedAt = now
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	m.tasks[t.ID] = cloneTask(t)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tasks[id]; ok {
		return cloneTask(t), nil
	}
	return nil, ErrTaskNotFound
}

func (m *MemoryStore) Claim(_ context.Context, id string) (*Task, error) {
	return m.update(id, func(t *Task) error {
		switch {
		case t.Done():
			return ErrTaskCompleted
		case t.Status == StatusRunning:
			return ErrTaskConflict
		}
		t.Status, t.LastError, t.ErrorCode = StatusRunning, "", ""
		return nil
	})
}

func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result action.Result) error {
	_, err := m.update(id, func(t *Task) error {
		t.Status, t.Result, t.LastError, t.ErrorCode = StatusSucceeded, cloneMap(result), "", ""
		return nil
	})
	return err
}

func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, result action.Result) error {
	_, err := m.update(id, func(t *Task) error {
		t.Status, t.Result, t.LastError, t.ErrorCode = StatusFailed, cloneMap(result), lastError, string(code)
		return nil
	})
	return err
}

// update 在写锁内修改任务并返回修改后的副本。fn 返回错误时任务保持不变，
// 返回值仍是当前状态的副本。
func (m *MemoryStore) update(id string, fn func(*Task) error) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if err := fn(t); err != nil {
		return cloneTask(t), err
	}
	t.UpdatedAt = m.now().Unix()
	return cloneTask(t), nil
}

func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Task, error) {
	opts.normalize()
	matched := m.filter(opts)
	slices.SortFunc(matched, func(a, b *Task) int {
		c := cmp.Or(cmp.Compare(b.UpdatedAt, a.UpdatedAt), cmp.Compare(b.ID, a.ID))
		if opts.Ascending {
			return -c
		}
		return c
	})
	if opts.Offset >= len(matched) {
		return []*Task{}, nil
	}
	matched = matched[opts.Offset:]
	return matched[:min(len(matched), opts.Limit)], nil
}

func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (TaskStats, error) {
	opts.normalize()
	var stats TaskStats
	for _, t := range m.filter(opts) {
		stats.add(t.Action, t.Status, t.ErrorCode, 1, t.UpdatedAt, t.UpdatedAt)
	}
	return stats, nil
}

// filter 返回匹配任务的副本，不做分页。
func (m *MemoryStore) filter(opts ListOptions) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if opts.matches(t) {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
