package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"StoryAgent-Kit/internal/agent"
	"StoryAgent-Kit/internal/config"
	"StoryAgent-Kit/internal/storage/mysql"
	"StoryAgent-Kit/internal/task"
)

func TestOpenJournalDefaultsToFile(t *testing.T) {
	cfg := config.Default()
	cfg.Runtime.DataDir = filepath.Join(t.TempDir(), "data")

	journal, err := openJournal(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if _, ok := journal.(*mysql.FileInvocationRepository); !ok {
		t.Fatalf("expected file journal, got %T", journal)
	}

	cfg.Storage.Journal.Driver = "cassandra"
	if _, err := openJournal(context.Background(), cfg); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected unsupported driver, got %v", err)
	}
}

func TestOpenTaskInfrastructure(t *testing.T) {
	ctx := context.Background()
	store, err := openTaskStore(ctx, config.DatabaseConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, ok := store.(*task.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	queue, err := openQueue(ctx, config.TaskQueueConfig{})
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	if _, ok := queue.(*task.MemoryQueue); !ok {
		t.Fatalf("expected memory queue, got %T", queue)
	}

	if _, err := openTaskStore(ctx, config.DatabaseConfig{Driver: "sqlite"}); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected unsupported store driver, got %v", err)
	}
	if _, err := openQueue(ctx, config.TaskQueueConfig{Driver: "kafka"}); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected unsupported queue driver, got %v", err)
	}
}

func TestAPIKeysCarryPermissions(t *testing.T) {
	keys := apiKeys([]config.APIKeyConfig{{Name: "ops", Key: "k", Permissions: []string{"actions:read"}}})
	if len(keys) != 1 || keys[0].Secret != "k" || keys[0].Permissions[0] != "actions:read" {
		t.Fatalf("unexpected keys: %+v", keys)
	}
	if newAlerter(config.AlertingConfig{WebhookURL: "http://127.0.0.1:1/hook", TimeoutSeconds: 1}) == nil {
		t.Fatalf("expected dispatcher")
	}
}

func TestNewFailsWithoutPrivateKey(t *testing.T) {
	t.Setenv(config.EnvPrivateKey, "")
	cfg := config.Default()
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected missing private key to be fatal")
	}
}

type blockingExecutor struct {
	started chan struct{}
}

func (b blockingExecutor) Execute(ctx context.Context, req agent.TaskRequest) (*agent.TaskResult, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStartProcessorWaitsForWorkers(t *testing.T) {
	store := task.NewMemoryStore()
	queue := task.NewMemoryQueue(1)
	exec := blockingExecutor{started: make(chan struct{})}
	rt := &Runtime{processor: task.NewProcessor(exec, store, queue)}

	ctx := context.Background()
	submitted, err := task.NewService(store, queue).Submit(ctx, agent.TaskRequest{Action: "stake"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	stop := rt.startProcessor(ctx)
	select {
	case <-exec.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("task never started")
	}
	stop()

	got, err := store.Get(ctx, submitted.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Done() {
		t.Fatalf("task still %s after processor stopped", got.Status)
	}
}
