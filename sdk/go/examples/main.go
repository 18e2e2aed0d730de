package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"StoryAgent-Kit/sdk/go/storyagent"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/actions/{name}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "success",
			"balance": "12.5",
			"symbol":  "IP",
		})
	})
	mux.HandleFunc("POST /api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(storyagent.Task{ID: "task-demo", Action: "stake", Status: "pending"})
	})
	mux.HandleFunc("GET /api/v1/tasks/task-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(storyagent.Task{
			ID:     "task-demo",
			Action: "stake",
			Status: "succeeded",
			Result: storyagent.Result{"status": "success", "hash": "0xabc"},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := storyagent.NewClient(srv.URL, storyagent.WithHTTPClient(srv.Client()))
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	balance, err := client.Invoke(ctx, "NATIVE_BALANCE_ACTION", nil)
	if err != nil {
		panic(err)
	}
	fmt.Printf("balance %v %v\n", balance["balance"], balance["symbol"])

	submitted, err := client.SubmitTask(ctx, storyagent.TaskSubmission{Action: "stake", Input: map[string]any{"amount": "1"}})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted task %s (status=%s)\n", submitted.ID, submitted.Status)

	done, err := client.WaitTask(ctx, submitted.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %s finished: %s hash=%v\n", done.ID, done.Status, done.Result["hash"])
}
