package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"StoryAgent-Kit/pkg/logger"
)

// Message 是队列中传递的任务引用。任务内容以 Store 为准，Action 仅用于日志。
type Message struct {
	TaskID     string `json:"task_id"`
	Action     string `json:"action"`
	EnqueuedAt int64  `json:"enqueued_at_ms"`
}

// NewMessage 为任务生成一条队列消息。
func NewMessage(t *Task) Message {
	return Message{TaskID: t.ID, Action: t.Action, EnqueuedAt: time.Now().UnixMilli()}
}

// Waited 返回消息在队列中停留的时间。
func (m Message) Waited() time.Duration {
	if m.EnqueuedAt == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(m.EnqueuedAt))
}

// Handler 处理一条队列消息。返回的错误只会被记录，消息不会重新投递。
type Handler func(ctx context.Context, msg Message) error

type Producer interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

type Queue interface {
	Producer
	Consumer
}

func encodeMessage(msg Message) ([]byte, error) {
	if msg.TaskID == "" {
		return nil, fmt.Errorf("消息缺少 task_id")
	}
	return json.Marshal(msg)
}

// decodeMessage 兼容只包含任务 ID 的纯文本消息。
func decodeMessage(body []byte) (Message, error) {
	var msg Message
	if len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &msg); err != nil {
			return Message{}, fmt.Errorf("解析队列消息失败: %w", err)
		}
	} else {
		msg.TaskID = string(body)
	}
	if msg.TaskID == "" {
		return Message{}, fmt.Errorf("队列消息缺少 task_id")
	}
	return msg, nil
}

// deliver 调用 handler 并记录失败，driver 为队列实现名。
func deliver(ctx context.Context, driver string, handler Handler, msg Message) {
	if err := handler(ctx, msg); err != nil {
		logger.L().Warn("任务处理失败",
			slog.String("queue", driver),
			slog.String("task_id", msg.TaskID),
			slog.String("action", msg.Action),
			slog.Duration("queued", msg.Waited()),
			slog.Any("error", err),
		)
	}
}

func workers(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
