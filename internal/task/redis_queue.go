package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"StoryAgent-Kit/pkg/logger"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 基于 Redis list：LPUSH 投递，BLMOVE 把消息移入 <queue>:processing，
// 处理结束后从 processing 中删除。进程崩溃留下的 processing 条目只用于排查，不会被重新投递。
type RedisQueue struct {
	client     *redis.Client
	queue      string
	processing string
	wait       time.Duration
}

func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisQueue(client, cfg), nil
}

func newRedisQueue(client *redis.Client, cfg RedisQueueConfig) *RedisQueue {
	q := &RedisQueue{client: client, queue: cfg.Queue, wait: cfg.BlockWait}
	if q.queue == "" {
		q.queue = "storyagent:tasks"
	}
	if q.wait <= 0 {
		q.wait = 5 * time.Second
	}
	q.processing = q.queue + ":processing"
	return q
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	body, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queue, body).Err(); err != nil {
		return fmt.Errorf("Redis 发布任务失败: %w", err)
	}
	return nil
}

// Consume 启动 workerCount 个 worker。任一 worker 出错会停止其余 worker；
// 返回前等待全部 worker 退出。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	for range workers(workerCount) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.work(ctx, handler); err != nil && ctx.Err() == nil {
				cancel(err)
			}
		}()
	}
	wg.Wait()
	return context.Cause(ctx)
}

func (q *RedisQueue) work(ctx context.Context, handler Handler) error {
	for ctx.Err() == nil {
		raw, err := q.client.BLMove(ctx, q.queue, q.processing, "RIGHT", "LEFT", q.wait).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("Redis 取任务失败: %w", err)
		}

		msg, err := decodeMessage([]byte(raw))
		if err != nil {
			logger.L().Warn("丢弃无法解析的 Redis 消息", slog.String("body", raw), slog.Any("error", err))
		} else {
			deliver(ctx, "redis", handler, msg)
		}
		if err := q.client.LRem(context.WithoutCancel(ctx), q.processing, 1, raw).Err(); err != nil {
			logger.L().Warn("清理 processing 列表失败", slog.String("body", raw), slog.Any("error", err))
		}
	}
	return ctx.Err()
}

// Depth 返回等待中与处理中的消息数。
func (q *RedisQueue) Depth(ctx context.Context) (waiting, inFlight int64, err error) {
	pipe := q.client.Pipeline()
	w := pipe.LLen(ctx, q.queue)
	f := pipe.LLen(ctx, q.processing)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return w.Val(), f.Val(), nil
}

func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
