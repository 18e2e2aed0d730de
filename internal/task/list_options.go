package task

import (
	"slices"
	"strings"
	"time"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListOptions 描述任务列表与统计的筛选条件。零值表示不过滤、按更新时间倒序。
type ListOptions struct {
	Limit    int
	Offset   int
	Statuses []Status
	// Actions 按动作名精确匹配。
	Actions []string
	// Since/Until 为 Unix 秒，闭区间，0 表示不限。
	Since     int64
	Until     int64
	HasResult *bool
	Ascending bool
	// Query 对 id、动作名与最后错误做不区分大小写的子串匹配。
	Query string
}

// ListOption 修改 ListOptions。
type ListOption func(*ListOptions)

func WithLimit(limit int) ListOption {
	return func(o *ListOptions) { o.Limit = limit }
}

func WithOffset(offset int) ListOption {
	return func(o *ListOptions) { o.Offset = offset }
}

// WithStatuses 只保留给定状态的任务，未知状态会被忽略。
func WithStatuses(statuses ...Status) ListOption {
	return func(o *ListOptions) { o.Statuses = slices.Clone(statuses) }
}

// WithActions 只保留给定动作的任务。
func WithActions(actions ...string) ListOption {
	return func(o *ListOptions) { o.Actions = slices.Clone(actions) }
}

// WithUpdatedBetween 限定更新时间区间；任一端为零值时该端不限。
func WithUpdatedBetween(from, to time.Time) ListOption {
	return func(o *ListOptions) {
		o.Since, o.Until = unixOrZero(from), unixOrZero(to)
	}
}

// WithResultPresence 按任务是否已有动作结果过滤。
func WithResultPresence(hasResult bool) ListOption {
	return func(o *ListOptions) { o.HasResult = &hasResult }
}

// Oldest 改为按更新时间正序返回。
func Oldest() ListOption {
	return func(o *ListOptions) { o.Ascending = true }
}

func WithQuery(query string) ListOption {
	return func(o *ListOptions) { o.Query = query }
}

func buildListOptions(opts []ListOption) ListOptions {
	var o ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.normalize()
	return o
}

// normalize 把分页限制在 [1, 100]，并去掉重复或无效的状态与空白动作名。
func (o *ListOptions) normalize() {
	switch {
	case o.Limit <= 0:
		o.Limit = defaultListLimit
	case o.Limit > maxListLimit:
		o.Limit = maxListLimit
	}
	o.Offset = max(o.Offset, 0)
	o.Query = strings.TrimSpace(o.Query)

	statuses := o.Statuses[:0:0]
	for _, s := range o.Statuses {
		if IsValidStatus(s) && !slices.Contains(statuses, s) {
			statuses = append(statuses, s)
		}
	}
	o.Statuses = nilIfEmpty(statuses)

	actions := o.Actions[:0:0]
	for _, a := range o.Actions {
		if a = strings.TrimSpace(a); a != "" && !slices.Contains(actions, a) {
			actions = append(actions, a)
		}
	}
	o.Actions = nilIfEmpty(actions)
}

// matches 是内存实现使用的过滤判断，与 MySQL 的 WHERE 子句保持一致。
func (o ListOptions) matches(t *Task) bool {
	if o.Statuses != nil && !slices.Contains(o.Statuses, t.Status) {
		return false
	}
	if o.Actions != nil && !slices.Contains(o.Actions, t.Action) {
		return false
	}
	if o.Since > 0 && t.UpdatedAt < o.Since {
		return false
	}
	if o.Until > 0 && t.UpdatedAt > o.Until {
		return false
	}
	if o.HasResult != nil && (len(t.Result) > 0) != *o.HasResult {
		return false
	}
	if o.Query == "" {
		return true
	}
	q := strings.ToLower(o.Query)
	for _, field := range []string{t.ID, t.Action, t.LastError} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func unixOrZero(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.Unix()
}

func nilIfEmpty[S ~[]E, E any](s S) S {
	if len(s) == 0 {
		return nil
	}
	return s
}
