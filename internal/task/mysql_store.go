package task

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"StoryAgent-Kit/internal/action"
	xerrors "StoryAgent-Kit/internal/errors"
	storage "StoryAgent-Kit/internal/storage/mysql"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 的 action_tasks 表记录任务状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立连接并执行迁移。
func NewMySQLStore(ctx context.Context, cfg storage.Config) (*MySQLStore, error) {
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化任务存储失败")
	}
	return &MySQLStore{db: db}, nil
}

// NewMySQLStoreFromDB 复用已迁移的连接池。
func NewMySQLStoreFromDB(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const taskColumns = `id, action, input, status, result, last_error, error_code, created_at, updated_at`

// mysqlDuplicateEntry 是主键冲突的 MySQL 错误号。
const mysqlDuplicateEntry = 1062

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return stdErrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// Create 插入新的任务记录，重复 ID 返回 ErrTaskConflict。
func (s *MySQLStore) Create(ctx context.Context, t *Task) error {
	switch {
	case t == nil:
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	case strings.TrimSpace(t.ID) == "":
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	input, err := storage.MarshalJSONMap(t.Input)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务输入失败")
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	t.CreatedAt = time.Now().Unix()
	t.UpdatedAt = t.CreatedAt

	const stmt = "INSERT INTO action_tasks (" + taskColumns + ") VALUES (?, ?, ?, ?, NULL, '', '', ?, ?)"
	_, err = s.db.ExecContext(ctx, stmt, t.ID, t.Action, input, string(t.Status), t.CreatedAt, t.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case isDuplicateEntry(err):
		return ErrTaskConflict
	default:
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
}

// Get 查询指定任务。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	const stmt = "SELECT " + taskColumns + " FROM action_tasks WHERE id = ?"
	t, err := scanTask(s.db.QueryRowContext(ctx, stmt, id))
	switch {
	case err == nil:
		return t, nil
	case stdErrors.Is(err, sql.ErrNoRows):
		return nil, ErrTaskNotFound
	default:
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
}

// Claim 以条件更新把 pending 任务切换为 running，多个 worker 竞争时只有一个成功。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Task, error) {
	const stmt = "UPDATE action_tasks SET status = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ? AND status = ?"
	res, err := s.db.ExecContext(ctx, stmt, string(StatusRunning), time.Now().Unix(), id, string(StatusPending))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}

	t, err := s.Get(ctx, id)
	switch {
	case err != nil:
		return nil, err
	case claimed > 0:
		return t, nil
	case t.Done():
		return t, ErrTaskCompleted
	default:
		return t, ErrTaskConflict
	}
}

// MarkSucceeded 将任务标记为成功。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result action.Result) error {
	return s.finish(ctx, id, StatusSucceeded, "", "", result)
}

// MarkFailed 将任务标记为失败，任务不会再次执行。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, result action.Result) error {
	return s.finish(ctx, id, StatusFailed, code, lastError, result)
}

func (s *MySQLStore) finish(ctx context.Context, id string, status Status, code xerrors.Code, lastError string, result action.Result) error {
	encoded, err := storage.MarshalJSONMap(result)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码任务结果失败")
	}
	const stmt = "UPDATE action_tasks SET status = ?, result = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?"
	res, err := s.db.ExecContext(ctx, stmt, string(status), encoded, lastError, string(code), time.Now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务终态失败")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// List 返回最近的任务。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.normalize()

	query := `SELECT ` + taskColumns + ` FROM action_tasks`
	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	order := " ORDER BY updated_at DESC, id DESC"
	if opts.Ascending {
		order = " ORDER BY updated_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return tasks, nil
}

// Stats 返回符合过滤条件的任务聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (TaskStats, error) {
	opts.normalize()

	query := "SELECT action, status, error_code, COUNT(*), MIN(updated_at), MAX(updated_at) FROM action_tasks"
	clause, args := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	query += " GROUP BY action, status, error_code"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}
	defer rows.Close()

	var stats TaskStats
	for rows.Next() {
		var (
			name, status, code string
			count              int
			oldest, newest     int64
		)
		if err := rows.Scan(&name, &status, &code, &count, &oldest, &newest); err != nil {
			return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务统计失败")
		}
		stats.add(name, Status(status), code, count, oldest, newest)
	}
	if err := rows.Err(); err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务统计失败")
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task          Task
		status        string
		input, result sql.NullString
		lastError     sql.NullString
	)
	if err := row.Scan(
		&task.ID,
		&task.Action,
		&input,
		&status,
		&result,
		&lastError,
		&task.ErrorCode,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.Status = Status(status)
	task.LastError = lastError.String

	var err error
	if task.Input, err = storage.UnmarshalJSONMap(input); err != nil {
		return nil, fmt.Errorf("解析任务输入失败: %w", err)
	}
	decoded, err := storage.UnmarshalJSONMap(result)
	if err != nil {
		return nil, fmt.Errorf("解析任务结果失败: %w", err)
	}
	if decoded != nil {
		task.Result = action.Result(decoded)
	}
	return &task, nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for _, status := range opts.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(status))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(opts.Actions) > 0 {
		placeholders := make([]string, 0, len(opts.Actions))
		for _, name := range opts.Actions {
			placeholders = append(placeholders, "?")
			args = append(args, name)
		}
		conditions = append(conditions, fmt.Sprintf("action IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.Since > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.Since)
	}
	if opts.Until > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.Until)
	}
	if opts.HasResult != nil {
		if *opts.HasResult {
			conditions = append(conditions, "result IS NOT NULL")
		} else {
			conditions = append(conditions, "result IS NULL")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR action LIKE ? OR last_error LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
