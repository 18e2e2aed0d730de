package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMessageRoundTripAndPlainBodies(t *testing.T) {
	msg := NewMessage(&Task{ID: "t-1", Action: "stake"})
	body, err := encodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeMessage(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != msg {
		t.Fatalf("expected %+v, got %+v", msg, decoded)
	}

	plain, err := decodeMessage([]byte("legacy-id"))
	if err != nil || plain.TaskID != "legacy-id" || plain.Waited() != 0 {
		t.Fatalf("plain body: %+v %v", plain, err)
	}

	if _, err := decodeMessage([]byte(`{"action":"stake"}`)); err == nil {
		t.Fatal("message without task id must be rejected")
	}
	if _, err := encodeMessage(Message{Action: "stake"}); err == nil {
		t.Fatal("encoding without task id must fail")
	}
}

func TestMemoryQueueDeliversAndCloses(t *testing.T) {
	q := NewMemoryQueue(4)
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Publish(context.Background(), Message{TaskID: id}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		all  = make(chan struct{})
	)
	handler := func(_ context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen[msg.TaskID] = true
		if len(seen) == 3 {
			close(all)
		}
		return errors.New("ignored")
	}

	result := make(chan error, 1)
	go func() { result <- q.Consume(context.Background(), 2, handler) }()

	select {
	case <-all:
	case <-time.After(2 * time.Second):
		t.Fatal("messages were not delivered")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-result:
		if !errors.Is(err, errQueueClosed) {
			t.Fatalf("expected closed error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return after close")
	}
	if err := q.Publish(context.Background(), Message{TaskID: "late"}); !errors.Is(err, errQueueClosed) {
		t.Fatalf("publish after close: %v", err)
	}
}

func TestMemoryQueuePublishHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Publish(context.Background(), Message{TaskID: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Message{TaskID: "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error on full queue, got %v", err)
	}
}

func TestMemoryQueueCloseReleasesBlockedPublisher(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Publish(context.Background(), Message{TaskID: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	blocked := make(chan error, 1)
	go func() { blocked <- q.Publish(context.Background(), Message{TaskID: "b"}) }()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- q.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close hung behind a blocked publisher")
	}
	select {
	case err := <-blocked:
		if !errors.Is(err, errQueueClosed) {
			t.Fatalf("expected closed error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked publisher was not released")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestRedisQueueDefaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	q := newRedisQueue(client, RedisQueueConfig{})
	if q.queue != "storyagent:tasks" || q.processing != "storyagent:tasks:processing" || q.wait != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", q)
	}
	custom := newRedisQueue(client, RedisQueueConfig{Queue: "jobs", BlockWait: time.Second})
	if custom.processing != "jobs:processing" || custom.wait != time.Second {
		t.Fatalf("unexpected custom queue: %+v", custom)
	}
}
