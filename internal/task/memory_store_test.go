package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"StoryAgent-Kit/internal/action"
)

func seedStore(t *testing.T, base time.Time) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	ctx := context.Background()

	tasks := []*Task{
		{ID: "t1", Action: "getTokenBalance"},
		{ID: "t2", Action: "stake"},
		{ID: "t3", Action: "transferToken"},
	}
	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
	}

	failure := action.Result{"status": "error", "code": "SIMULATION_FAILED", "message": "execution reverted"}
	if err := store.MarkFailed(ctx, "t2", "SIMULATION_FAILED", "execution reverted", failure); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", action.Success(map[string]any{"txHash": "0xabc"})); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.Unix()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()
	return store
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	base := time.Now().Add(-2 * time.Minute)
	store := seedStore(t, base)
	ctx := context.Background()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != "t3" {
		t.Fatalf("expected newest task first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" || failed[0].ErrorCode != "SIMULATION_FAILED" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	withResult, err := store.List(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(withResult) != 2 {
		t.Fatalf("expected failed and succeeded tasks to carry results, got %+v", withResult)
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedBetween(since, time.Time{})}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 tasks to match since filter, got %d", len(recent))
	}

	window, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedBetween(base, base.Add(45*time.Second))}))
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(window) != 2 || window[0].ID != "t2" || window[1].ID != "t1" {
		t.Fatalf("unexpected window: %+v", window)
	}

	named, err := store.List(ctx, buildListOptions([]ListOption{WithActions("transferToken", " ", "getTokenBalance", "transferToken")}))
	if err != nil {
		t.Fatalf("list by action: %v", err)
	}
	if len(named) != 2 || named[0].ID != "t3" || named[1].ID != "t1" {
		t.Fatalf("unexpected action filter: %+v", named)
	}

	byAction, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("STAKE")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(byAction) != 1 || byAction[0].ID != "t2" {
		t.Fatalf("unexpected query result: %+v", byAction)
	}

	page, err := store.List(ctx, buildListOptions([]ListOption{Oldest(), WithLimit(1), WithOffset(1)}))
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "t2" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	base := time.Now().Add(-3 * time.Minute)
	store := seedStore(t, base)
	ctx := context.Background()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.OldestUpdatedAt != base.Unix() || stats.NewestUpdatedAt != base.Add(60*time.Second).Unix() {
		t.Fatalf("unexpected timestamps: %+v", stats)
	}

	withoutResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(false)}))
	if err != nil {
		t.Fatalf("stats without result: %v", err)
	}
	if stats.ByAction["stake"] != 1 || stats.ByAction["getTokenBalance"] != 1 || len(stats.ByAction) != 3 {
		t.Fatalf("unexpected per-action counts: %+v", stats.ByAction)
	}
	if len(stats.FailureCodes) != 1 || stats.FailureCodes["SIMULATION_FAILED"] != 1 {
		t.Fatalf("unexpected failure codes: %+v", stats.FailureCodes)
	}
	if withoutResults.Total != 1 || withoutResults.Pending != 1 {
		t.Fatalf("unexpected stats without result: %+v", withoutResults)
	}
}

func TestMemoryStoreClaimRunsOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Task{ID: "once", Action: "stake"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "once", Action: "stake"}); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	claimed, err := store.Claim(ctx, "once")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning {
		t.Fatalf("expected running, got %s", claimed.Status)
	}
	if _, err := store.Claim(ctx, "once"); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict while running, got %v", err)
	}
	if err := store.MarkFailed(ctx, "once", CodeTaskProcessing, "boom", nil); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "once"); !errors.Is(err, ErrTaskCompleted) {
		t.Fatalf("failed task must not be claimed again, got %v", err)
	}
	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	input := map[string]any{"amount": "1"}
	if err := store.Create(ctx, &Task{ID: "copy", Action: "stake", Input: input}); err != nil {
		t.Fatalf("create: %v", err)
	}
	input["amount"] = "999"

	got, err := store.Get(ctx, "copy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Input["amount"] != "1" {
		t.Fatalf("store shares caller input: %+v", got.Input)
	}
	got.Input["amount"] = "2"
	again, _ := store.Get(ctx, "copy")
	if again.Input["amount"] != "1" {
		t.Fatalf("store leaks internal state: %+v", again.Input)
	}
}
