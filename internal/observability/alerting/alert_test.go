package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "StoryAgent-Kit/internal/errors"
)

type failingNotifier struct{}

func (failingNotifier) Channel() Channel { return "broken" }
func (failingNotifier) Notify(context.Context, Event) error {
	return errors.New("boom")
}

func TestShouldAlertFollowsRegisteredAttributes(t *testing.T) {
	if !ShouldAlert(xerrors.CodeSubmission) {
		t.Fatalf("submission failures should alert")
	}
	if ShouldAlert(xerrors.CodeTokenNotFound) {
		t.Fatalf("token lookups should not alert")
	}
	if ShouldAlert("") {
		t.Fatalf("success should not alert")
	}
}

func TestWebhookPostsEvent(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	event := NewEvent("stake", "abc", xerrors.CodeHandlerPanic, "boom", map[string]string{"txHash": "0x01"})
	if err := NewWebhook(srv.URL, 0).Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Action != "stake" || got.Code != xerrors.CodeHandlerPanic || got.Severity != xerrors.SeverityCritical {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Metadata["txHash"] != "0x01" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	d := NewFanout(LogNotifier{}, failingNotifier{}, nil)
	err := d.Notify(context.Background(), NewEvent("stake", "", xerrors.CodeSubmission, "x", nil))
	if err == nil {
		t.Fatalf("expected the failing channel to surface")
	}
}
