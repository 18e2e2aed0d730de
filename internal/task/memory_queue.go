package task

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("队列已关闭")

// MemoryQueue 是默认的进程内队列，重启后未消费的消息会丢失。
// 消息通道从不关闭，关闭状态由 done 广播，阻塞中的发布者与消费者都能及时退出。
type MemoryQueue struct {
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan Message, size), done: make(chan struct{})}
}

// Publish 在队列满时阻塞，直到有空位、ctx 取消或队列关闭。
func (q *MemoryQueue) Publish(ctx context.Context, msg Message) error {
	select {
	case <-q.done:
		return errQueueClosed
	default:
	}
	select {
	case q.ch <- msg:
		return nil
	case <-q.done:
		return errQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	var wg sync.WaitGroup
	for range workers(workerCount) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case msg := <-q.ch:
					deliver(ctx, "memory", handler, msg)
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return errQueueClosed
}

// Len 返回尚未消费的消息数。
func (q *MemoryQueue) Len() int { return len(q.ch) }

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
