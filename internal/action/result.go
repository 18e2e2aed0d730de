package action

import (
	"fmt"

	xerrors "StoryAgent-Kit/internal/errors"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the normalized outcome of an action. It always carries a
// "status" key; error results add "message" and usually "code".
type Result map[string]any

// Success builds a success result from operation specific fields.
func Success(fields map[string]any) Result {
	r := make(Result, len(fields)+1)
	for k, v := range fields {
		r[k] = v
	}
	r["status"] = StatusSuccess
	return r
}

// Failure converts an error into an error result. Coded errors keep their
// code and contribute their metadata (e.g. "field", "txHash") as extra keys;
// anything else is reported without a code.
func Failure(err error) Result {
	if err == nil {
		return Result{"status": StatusError, "message": "unknown error"}
	}
	if e, ok := xerrors.From(err); ok {
		r := Result{
			"status":  StatusError,
			"message": e.Detail(),
			"code":    string(e.Code()),
		}
		for key, value := range e.Metadata() {
			if _, reserved := r[key]; !reserved {
				r[key] = value
			}
		}
		return r
	}
	return Result{"status": StatusError, "message": err.Error()}
}

// Errorf builds an error result with an explicit code.
func Errorf(code xerrors.Code, format string, args ...any) Result {
	return Result{
		"status":  StatusError,
		"message": fmt.Sprintf(format, args...),
		"code":    string(code),
	}
}

// From is a convenience for handlers: it returns Failure(err) when err is
// set and Success(fields) otherwise.
func From(fields map[string]any, err error) (Result, error) {
	if err != nil {
		return Failure(err), nil
	}
	return Success(fields), nil
}

// Status returns the status field.
func (r Result) Status() string {
	s, _ := r["status"].(string)
	return s
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Status() == StatusSuccess }

// Message returns the error message of a failed result.
func (r Result) Message() string {
	s, _ := r["message"].(string)
	return s
}

// Code returns the error code of a failed result, if any.
func (r Result) Code() string {
	s, _ := r["code"].(string)
	return s
}
