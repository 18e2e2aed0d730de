package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// journalCap 是文件日志在内存中保留的最大记录数；磁盘上的行数超过
// journalCompactAt 时文件会被压缩为最近的 journalCap 条。
const (
	journalCap       = 512
	journalCompactAt = 2 * journalCap
)

// InvocationRecord 表示一次动作调用的落库结构。
type InvocationRecord struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Input      map[string]any `json:"input,omitempty"`
	Status     string         `json:"status"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	CreatedAt  int64          `json:"created_at"`
}

// InvocationRepository 抽象调用日志的持久化接口。
type InvocationRepository interface {
	Save(ctx context.Context, record InvocationRecord) error
	ListLatest(ctx context.Context, limit int) ([]InvocationRecord, error)
}

// FileInvocationRepository 使用本地 JSON Lines 文件记录调用日志，方便单机部署。
type FileInvocationRepository struct {
	mu       sync.RWMutex
	dataFile string
	// records 按写入顺序保存最近的记录，最旧的在前。
	records []InvocationRecord
	// lines 是磁盘文件当前的行数。
	lines int
}

// NewFileInvocationRepository 创建文件调用日志，并从磁盘恢复最近的记录。
func NewFileInvocationRepository(dataDir string) (*FileInvocationRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &FileInvocationRepository{dataFile: filepath.Join(dataDir, "invocations.log")}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录调用结果。
func (m *FileInvocationRepository) Save(_ context.Context, record InvocationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化调用记录失败: %w", err)
	}

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开调用日志失败: %w", err)
	}
	_, err = file.Write(append(encoded, '\n'))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("写入调用日志失败: %w", err)
	}
	m.lines++

	if len(m.records) == journalCap {
		copy(m.records, m.records[1:])
		m.records[journalCap-1] = record
	} else {
		m.records = append(m.records, record)
	}
	if m.lines > journalCompactAt {
		return m.compact()
	}
	return nil
}

// ListLatest 返回最近的调用记录，按时间倒序排列。
func (m *FileInvocationRepository) ListLatest(_ context.Context, limit int) ([]InvocationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]InvocationRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(results) < limit; i-- {
		results = append(results, m.records[i])
	}
	return results, nil
}

// loadFromDisk 只保留最后 journalCap 条有效记录，文件过长或含损坏行时立即压缩。
func (m *FileInvocationRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取调用日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	ring := make([]InvocationRecord, journalCap)
	var valid, lines int
	for scanner.Scan() {
		lines++
		var record InvocationRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		ring[valid%journalCap] = record
		valid++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析调用日志失败: %w", err)
	}

	if valid <= journalCap {
		m.records = ring[:valid]
	} else {
		start := valid % journalCap
		m.records = append(ring[start:len(ring):len(ring)], ring[:start]...)
	}
	m.lines = lines
	if lines > len(m.records) {
		return m.compact()
	}
	return nil
}

// compact 用内存中的记录重写日志文件。先写临时文件再重命名，中途失败不会损坏原文件。
func (m *FileInvocationRepository) compact() error {
	tmp, err := os.CreateTemp(filepath.Dir(m.dataFile), filepath.Base(m.dataFile)+".*")
	if err != nil {
		return fmt.Errorf("创建临时日志失败: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("设置日志权限失败: %w", err)
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, record := range m.records {
		if err := enc.Encode(record); err != nil {
			tmp.Close()
			return fmt.Errorf("压缩调用日志失败: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("压缩调用日志失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("压缩调用日志失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.dataFile); err != nil {
		return fmt.Errorf("替换调用日志失败: %w", err)
	}
	m.lines = len(m.records)
	return nil
}

// SQLInvocationRepository 使用 MySQL 存储调用日志。
type SQLInvocationRepository struct {
	db *sql.DB
}

// NewSQLInvocationRepository 基于已迁移的连接池创建仓库。
func NewSQLInvocationRepository(db *sql.DB) *SQLInvocationRepository {
	return &SQLInvocationRepository{db: db}
}

const insertInvocationSQL = `INSERT INTO invocations
        (id, action, input, status, code, message, result, duration_ms, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const listInvocationsSQL = `SELECT id, action, input, status, code, message, result, duration_ms, created_at
        FROM invocations ORDER BY created_at DESC, id DESC LIMIT ?`

// Save 将调用记录写入 MySQL。
func (s *SQLInvocationRepository) Save(ctx context.Context, record InvocationRecord) error {
	input, err := MarshalJSONMap(record.Input)
	if err != nil {
		return fmt.Errorf("编码调用输入失败: %w", err)
	}
	result, err := MarshalJSONMap(record.Result)
	if err != nil {
		return fmt.Errorf("编码调用结果失败: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insertInvocationSQL,
		record.ID,
		record.Action,
		input,
		record.Status,
		record.Code,
		record.Message,
		result,
		record.DurationMS,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条调用记录。
func (s *SQLInvocationRepository) ListLatest(ctx context.Context, limit int) ([]InvocationRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, listInvocationsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("查询调用记录失败: %w", err)
	}
	defer rows.Close()

	var records []InvocationRecord
	for rows.Next() {
		var (
			record        InvocationRecord
			input, result sql.NullString
			message       sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.Action, &input, &record.Status, &record.Code, &message, &result, &record.DurationMS, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析调用记录失败: %w", err)
		}
		record.Message = message.String
		if record.Input, err = UnmarshalJSONMap(input); err != nil {
			return nil, fmt.Errorf("解析调用输入失败: %w", err)
		}
		if record.Result, err = UnmarshalJSONMap(result); err != nil {
			return nil, fmt.Errorf("解析调用结果失败: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历调用记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLInvocationRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// MarshalJSONMap 将 map 编码为可空的 JSON 列值。
func MarshalJSONMap(v map[string]any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// UnmarshalJSONMap 解析可空的 JSON 列。
func UnmarshalJSONMap(v sql.NullString) (map[string]any, error) {
	if !v.Valid || v.String == "" || v.String == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}
