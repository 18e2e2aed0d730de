package action

import (
	"errors"
	"testing"

	xerrors "StoryAgent-Kit/internal/errors"
)

func TestResultHelpers(t *testing.T) {
	t.Parallel()

	ok := Success(map[string]any{"balance": "1.5", "status": "ignored"})
	if !ok.OK() || ok["balance"] != "1.5" {
		t.Fatalf("unexpected success result %v", ok)
	}

	wrapped := Failure(xerrors.Wrap(xerrors.CodeSubmission, errors.New("nonce too low"), "transfer failed"))
	if wrapped.Status() != StatusError || wrapped.Code() != string(xerrors.CodeSubmission) {
		t.Fatalf("unexpected failure result %v", wrapped)
	}
	if wrapped.Message() != "transfer failed: nonce too low" {
		t.Fatalf("message should carry the cause, got %q", wrapped.Message())
	}

	plain := Failure(errors.New("plain"))
	if _, hasCode := plain["code"]; hasCode || plain.Message() != "plain" {
		t.Fatalf("plain errors carry no code: %v", plain)
	}

	res, err := From(nil, xerrors.New(xerrors.CodeInsufficientBalance, "You have no stIP tokens to unstake"))
	if err != nil || res.Code() != string(xerrors.CodeInsufficientBalance) {
		t.Fatalf("From should convert errors into results: %v %v", res, err)
	}
}
