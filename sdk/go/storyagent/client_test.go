package storyagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestInvokeReturnsFailedResultWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/actions/unstake" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		var input map[string]any
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input["amount"] != "0.01" {
			t.Errorf("unexpected body %v (%v)", input, err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "error", "code": "VALIDATION_FAILED", "message": "amount below minimum",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	res, err := client.Invoke(context.Background(), "unstake", map[string]any{"amount": "0.01"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res.OK() || res.Code() != "VALIDATION_FAILED" || res.Message() == "" {
		t.Fatalf("unexpected result %v", res)
	}
}

func TestListActionsAndHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/actions":
			_ = json.NewEncoder(w).Encode(map[string]any{"actions": []ActionInfo{{Name: "stake", ToolName: "metapool_stake"}}})
		case "/api/v1/invocations":
			if r.URL.Query().Get("limit") != "5" {
				t.Errorf("limit not forwarded: %s", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"invocations": []Invocation{{ID: "inv-1", Action: "stake", Status: "success"}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	actions, err := client.ListActions(context.Background())
	if err != nil || len(actions) != 1 || actions[0].ToolName != "metapool_stake" {
		t.Fatalf("list actions: %v %v", actions, err)
	}
	history, err := client.History(context.Background(), 5)
	if err != nil || len(history) != 1 || history[0].ID != "inv-1" {
		t.Fatalf("history: %v %v", history, err)
	}
}

func TestWaitTaskPollsUntilDone(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/tasks":
			var sub TaskSubmission
			_ = json.NewDecoder(r.Body).Decode(&sub)
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(Task{ID: "task-1", Action: sub.Action, Status: "pending"})
		case r.URL.Path == "/api/v1/tasks/task-1":
			status := "running"
			if atomic.AddInt32(&polls, 1) >= 3 {
				status = "succeeded"
			}
			_ = json.NewEncoder(w).Encode(Task{ID: "task-1", Status: status, Result: Result{"status": "success"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := client.SubmitTask(ctx, TaskSubmission{Action: "stake", Input: map[string]any{"amount": "1"}})
	if err != nil || created.Status != "pending" || created.Action != "stake" {
		t.Fatalf("submit: %v %v", created, err)
	}
	done, err := client.WaitTask(ctx, created.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !done.Done() || !done.Result.OK() {
		t.Fatalf("unexpected task %+v", done)
	}
	if atomic.LoadInt32(&polls) != 3 {
		t.Fatalf("expected 3 polls, got %d", polls)
	}
}

func TestGetTaskError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "code": "TASK_NOT_FOUND", "message": "missing"})
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	_, err := client.GetTask(context.Background(), "task-404")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "TASK_NOT_FOUND" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if !IsCode(err, "TASK_NOT_FOUND") {
		t.Fatal("IsCode should match")
	}
}
