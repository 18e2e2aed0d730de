package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"StoryAgent-Kit/internal/action"
	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/internal/kit/kittest"
	"StoryAgent-Kit/internal/observability/alerting"
	"StoryAgent-Kit/internal/storage/mysql"
)

type pingInput struct {
	Echo string `json:"echo,omitempty"`
}

func (pingInput) Validate() error { return nil }

func testRegistry(t *testing.T) *action.Registry {
	t.Helper()
	reg := action.NewRegistry()
	err := reg.Register(
		action.Define(action.Meta{Name: "ping", Description: "echo"}, func(_ context.Context, _ *kit.Kit, in pingInput) (action.Result, error) {
			return action.Success(map[string]any{"echo": in.Echo}), nil
		}),
		action.Define(action.Meta{Name: "broken", Description: "panics"}, func(context.Context, *kit.Kit, pingInput) (action.Result, error) {
			panic("boom")
		}),
	)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

type brokenJournal struct{}

func (brokenJournal) Save(context.Context, mysql.InvocationRecord) error {
	return errors.New("disk full")
}

func (brokenJournal) ListLatest(context.Context, int) ([]mysql.InvocationRecord, error) {
	return nil, errors.New("disk full")
}

type recordingAlerter struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingAlerter) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func TestExecuteJournalsInvocation(t *testing.T) {
	k, _ := kittest.New(t)
	journal, err := mysql.NewFileInvocationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	ag := New(testRegistry(t), k, WithJournal(journal))

	result, err := ag.Execute(context.Background(), TaskRequest{Action: "ping", Input: map[string]any{"echo": "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Result.OK() || result.Result["echo"] != "hi" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ID == "" {
		t.Fatalf("expected an invocation id")
	}

	history, err := ag.ListHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != result.ID || history[0].Status != action.StatusSuccess {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestExecuteKeepsCallerID(t *testing.T) {
	k, _ := kittest.New(t)
	ag := New(testRegistry(t), k)

	result, err := ag.Execute(context.Background(), TaskRequest{ID: "req-1", Action: "ping"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ID != "req-1" {
		t.Fatalf("expected caller id, got %s", result.ID)
	}
}

func TestJournalFailureDoesNotChangeResult(t *testing.T) {
	k, _ := kittest.New(t)
	ag := New(testRegistry(t), k, WithJournal(brokenJournal{}))

	result, err := ag.Execute(context.Background(), TaskRequest{Action: "ping"})
	if err != nil {
		t.Fatalf("journal failure leaked: %v", err)
	}
	if !result.Result.OK() {
		t.Fatalf("unexpected result: %+v", result.Result)
	}
	if _, err := ag.ListHistory(context.Background(), 5); !xerrors.HasCode(err, xerrors.CodeStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
}

func TestUnknownActionIsAResult(t *testing.T) {
	k, _ := kittest.New(t)
	ag := New(testRegistry(t), k)

	result, err := ag.Execute(context.Background(), TaskRequest{Action: "nope"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Result.Code() != string(xerrors.CodeUnknownAction) {
		t.Fatalf("unexpected result: %+v", result.Result)
	}
}

func TestPanicRaisesAlert(t *testing.T) {
	k, _ := kittest.New(t)
	alerter := &recordingAlerter{}
	ag := New(testRegistry(t), k, WithAlertDispatcher(alerter))

	result, err := ag.Execute(context.Background(), TaskRequest{Action: "broken"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Result.Code() != string(xerrors.CodeHandlerPanic) {
		t.Fatalf("unexpected result: %+v", result.Result)
	}
	if len(alerter.events) != 1 || alerter.events[0].Action != "broken" {
		t.Fatalf("expected one alert, got %+v", alerter.events)
	}

	_, _ = ag.Execute(context.Background(), TaskRequest{Action: "nope"})
	if len(alerter.events) != 1 {
		t.Fatalf("unknown actions must not alert")
	}
}

func TestExecuteRequiresSetup(t *testing.T) {
	ag := New(nil, nil)
	if _, err := ag.Execute(context.Background(), TaskRequest{Action: "ping"}); !xerrors.HasCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected initialization failure, got %v", err)
	}

	k, _ := kittest.New(t)
	ag = New(testRegistry(t), k)
	if _, err := ag.Execute(context.Background(), TaskRequest{Action: "  "}); !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := ag.ListHistory(context.Background(), 1); !xerrors.HasCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected missing journal error, got %v", err)
	}
}
