package mysql

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestFileInvocationRepositoryNewestFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewFileInvocationRepository(dir)
	if err != nil {
		t.Fatalf("failed to create file repo: %v", err)
	}

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		record := InvocationRecord{
			ID:        fmt.Sprintf("inv-%d", i),
			Action:    "getTokenBalance",
			Input:     map[string]any{"token": "USDC"},
			Status:    "success",
			Result:    map[string]any{"status": "success", "balance": "1.5"},
			CreatedAt: int64(i),
		}
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	latest, err := repo.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != "inv-3" || latest[1].ID != "inv-2" {
		t.Fatalf("unexpected order: %+v", latest)
	}

	reopened, err := NewFileInvocationRepository(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	all, err := reopened.ListLatest(ctx, 0)
	if err != nil {
		t.Fatalf("list after reopen failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "inv-3" {
		t.Fatalf("records not restored newest first: %+v", all)
	}
	if all[0].Result["balance"] != "1.5" {
		t.Fatalf("result not restored: %+v", all[0].Result)
	}
}

func TestFileInvocationRepositoryCap(t *testing.T) {
	t.Parallel()

	repo, err := NewFileInvocationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file repo: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < journalCap+10; i++ {
		if err := repo.Save(ctx, InvocationRecord{ID: fmt.Sprint(i), Action: "stake", Status: "success"}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	all, _ := repo.ListLatest(ctx, 0)
	if len(all) != journalCap {
		t.Fatalf("expected %d records, got %d", journalCap, len(all))
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()
	n := 0
	for scanner := bufio.NewScanner(file); scanner.Scan(); {
		n++
	}
	return n
}

func TestFileInvocationRepositoryReloadsLongLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "invocations.log")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create journal: %v", err)
	}
	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	total := 3*journalCap + 7
	for i := 0; i < total; i++ {
		if i == journalCap {
			_, _ = w.WriteString("{not json\n")
		}
		if err := enc.Encode(InvocationRecord{ID: fmt.Sprintf("inv-%d", i), Action: "stake", Status: "success"}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_ = file.Close()

	repo, err := NewFileInvocationRepository(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	all, _ := repo.ListLatest(context.Background(), 0)
	if len(all) != journalCap {
		t.Fatalf("expected %d records, got %d", journalCap, len(all))
	}
	if all[0].ID != fmt.Sprintf("inv-%d", total-1) || all[journalCap-1].ID != fmt.Sprintf("inv-%d", total-journalCap) {
		t.Fatalf("unexpected window: newest %s oldest %s", all[0].ID, all[journalCap-1].ID)
	}
	if n := countLines(t, path); n != journalCap {
		t.Fatalf("journal not compacted on load, %d lines", n)
	}

	if err := repo.Save(context.Background(), InvocationRecord{ID: "after", Action: "stake"}); err != nil {
		t.Fatalf("save after compaction: %v", err)
	}
	latest, _ := repo.ListLatest(context.Background(), 1)
	if latest[0].ID != "after" {
		t.Fatalf("unexpected newest record %s", latest[0].ID)
	}
}

func TestFileInvocationRepositoryCompactsWhileRunning(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewFileInvocationRepository(dir)
	if err != nil {
		t.Fatalf("failed to create file repo: %v", err)
	}
	ctx := context.Background()
	for i := 0; i <= journalCompactAt; i++ {
		if err := repo.Save(ctx, InvocationRecord{ID: fmt.Sprint(i), Action: "stake"}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if n := countLines(t, filepath.Join(dir, "invocations.log")); n != journalCap {
		t.Fatalf("expected compaction to %d lines, got %d", journalCap, n)
	}
	all, _ := repo.ListLatest(ctx, 0)
	if all[0].ID != fmt.Sprint(journalCompactAt) {
		t.Fatalf("unexpected newest record %s", all[0].ID)
	}
}

func TestSQLInvocationRepositorySave(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO invocations").
		WithArgs("inv-1", "stake", sqlmock.AnyArg(), "error", "SIMULATION_FAILED", "execution reverted", sqlmock.AnyArg(), int64(12), int64(100)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewSQLInvocationRepository(db)
	err = repo.Save(context.Background(), InvocationRecord{
		ID:         "inv-1",
		Action:     "stake",
		Input:      map[string]any{"amount": "10"},
		Status:     "error",
		Code:       "SIMULATION_FAILED",
		Message:    "execution reverted",
		Result:     map[string]any{"status": "error"},
		DurationMS: 12,
		CreatedAt:  100,
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLInvocationRepositoryListLatest(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"id", "action", "input", "status", "code", "message", "result", "duration_ms", "created_at"}).
		AddRow("inv-2", "getStakingAPY", nil, "success", "", nil, `{"status":"success","apy":14.97}`, int64(30), int64(200)).
		AddRow("inv-1", "stake", `{"amount":"10"}`, "error", "SIMULATION_FAILED", "reverted", `{"status":"error"}`, int64(12), int64(100))
	mock.ExpectQuery("SELECT id, action, input, status").WithArgs(5).WillReturnRows(rows)

	repo := NewSQLInvocationRepository(db)
	records, err := repo.ListLatest(context.Background(), 5)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Input != nil || records[0].Result["apy"] != 14.97 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Input["amount"] != "10" || records[1].Message != "reverted" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

