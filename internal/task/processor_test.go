package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"StoryAgent-Kit/internal/action"
	"StoryAgent-Kit/internal/agent"
	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/internal/kit/kittest"
)

type fakeAgent struct {
	processed atomic.Int32
	latency   time.Duration
}

func (f *fakeAgent) Execute(ctx context.Context, req agent.TaskRequest) (*agent.TaskResult, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.processed.Add(1)
	return &agent.TaskResult{ID: req.ID, Action: req.Action, Result: action.Success(nil)}, nil
}

type amountInput struct {
	Amount string `json:"amount"`
}

func (amountInput) Validate() error { return nil }

func newTestAgent(t *testing.T) *agent.Agent {
	t.Helper()
	reg := action.NewRegistry()
	err := reg.Register(
		action.Define(action.Meta{Name: "deposit", Description: "always succeeds"}, func(_ context.Context, _ *kit.Kit, in amountInput) (action.Result, error) {
			return action.Success(map[string]any{"amount": in.Amount}), nil
		}),
		action.Define(action.Meta{Name: "revert", Description: "always fails"}, func(context.Context, *kit.Kit, amountInput) (action.Result, error) {
			return action.Errorf(xerrors.CodeSimulation, "execution reverted"), nil
		}),
	)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	k, _ := kittest.New(t)
	return agent.New(reg, k)
}

func startProcessor(t *testing.T, p *Processor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	fake := &fakeAgent{latency: 10 * time.Millisecond}

	service := NewService(store, queue)
	stop := startProcessor(t, NewProcessor(fake, store, queue, WithWorkerCount(8)))
	defer stop()

	total := 200
	for i := 0; i < total; i++ {
		req := agent.TaskRequest{Action: "deposit", Input: map[string]any{"amount": fmt.Sprint(i)}}
		if _, err := service.Submit(ctx, req); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for int(fake.processed.Load()) < total {
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", fake.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRecordsOutcomes(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	service := NewService(store, queue)
	stop := startProcessor(t, NewProcessor(newTestAgent(t), store, queue, WithWorkerCount(2)))
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := service.Submit(ctx, agent.TaskRequest{Action: "deposit", Input: map[string]any{"amount": "10"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	bad, err := service.Submit(ctx, agent.TaskRequest{Action: "revert", Input: map[string]any{"amount": "10"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done, err := service.WaitUntilCompleted(ctx, ok.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.Status != StatusSucceeded || done.Result["amount"] != "10" {
		t.Fatalf("unexpected succeeded task: %+v", done)
	}

	failed, err := service.WaitUntilCompleted(ctx, bad.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if failed.ErrorCode != string(xerrors.CodeSimulation) || failed.LastError != "execution reverted" {
		t.Fatalf("unexpected failure details: %+v", failed)
	}
	if failed.Result.Code() != string(xerrors.CodeSimulation) {
		t.Fatalf("failure result not kept: %+v", failed.Result)
	}
	if queue.Len() != 0 {
		t.Fatalf("failed task must not be re-queued, queue has %d", queue.Len())
	}
}

func TestProcessorSkipsFinishedTasks(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Task{ID: "done", Action: "deposit"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "done", action.Success(nil)); err != nil {
		t.Fatalf("mark: %v", err)
	}

	fake := &fakeAgent{}
	p := NewProcessor(fake, store, nil)
	if err := p.handle(ctx, Message{TaskID: "done", Action: "stake"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := p.handle(ctx, Message{TaskID: "missing"}); err != nil {
		t.Fatalf("handle missing: %v", err)
	}
	if fake.processed.Load() != 0 {
		t.Fatalf("finished tasks must not execute again")
	}
	if err := p.Start(ctx); !xerrors.HasCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected initialization failure without consumer, got %v", err)
	}
}

// ctxStore fails writes on a cancelled context the way a SQL driver does.
type ctxStore struct {
	*MemoryStore
}

func (s ctxStore) MarkSucceeded(ctx context.Context, id string, result action.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkSucceeded(ctx, id, result)
}

func (s ctxStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, result action.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkFailed(ctx, id, code, lastError, result)
}

func waitForStatus(t *testing.T, store Store, id string, want Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got, err := store.Get(context.Background(), id); err == nil && got.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s", id, want)
}

func TestProcessorShutdownLeavesNoRunningTask(t *testing.T) {
	store := ctxStore{NewMemoryStore()}
	queue := NewMemoryQueue(4)
	service := NewService(store, queue)
	stop := startProcessor(t, NewProcessor(&fakeAgent{latency: time.Minute}, store, queue))

	submitted, err := service.Submit(context.Background(), agent.TaskRequest{Action: "deposit"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForStatus(t, store, submitted.ID, StatusRunning)

	stop()

	got, err := store.Get(context.Background(), submitted.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.ErrorCode != string(CodeTaskProcessing) {
		t.Fatalf("interrupted task must end failed, got %+v", got)
	}
}
