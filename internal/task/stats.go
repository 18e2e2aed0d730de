package task

// TaskStats 汇总筛选范围内的任务：按状态计数、按动作计数，以及失败任务的错误码分布。
type TaskStats struct {
	Total           int            `json:"total"`
	Pending         int            `json:"pending"`
	Running         int            `json:"running"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	OldestUpdatedAt int64          `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64          `json:"newest_updated_at,omitempty"`
	ByAction        map[string]int `json:"by_action,omitempty"`
	FailureCodes    map[string]int `json:"failure_codes,omitempty"`
}

// add 累加一组具有相同动作、状态与错误码的任务。
func (s *TaskStats) add(action string, status Status, code string, count int, oldest, newest int64) {
	if count <= 0 {
		return
	}
	s.Total += count
	switch status {
	case StatusPending:
		s.Pending += count
	case StatusRunning:
		s.Running += count
	case StatusSucceeded:
		s.Succeeded += count
	case StatusFailed:
		s.Failed += count
		if code != "" {
			if s.FailureCodes == nil {
				s.FailureCodes = make(map[string]int)
			}
			s.FailureCodes[code] += count
		}
	}
	if s.ByAction == nil {
		s.ByAction = make(map[string]int)
	}
	s.ByAction[action] += count
	if s.OldestUpdatedAt == 0 || oldest < s.OldestUpdatedAt {
		s.OldestUpdatedAt = oldest
	}
	s.NewestUpdatedAt = max(s.NewestUpdatedAt, newest)
}
