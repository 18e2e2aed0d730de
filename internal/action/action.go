// Package action binds a name, an input contract, examples and a handler
// into a single dispatch record, and keeps those records in a Registry that
// agent hosts (HTTP API, MCP server, CLI, task workers) invoke by name.
package action

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/pkg/logger"
)

// Input is implemented by every action input struct.
type Input interface {
	Validate() error
}

// Handler runs an action with its decoded, validated input. A returned error
// is converted into an error Result.
type Handler[T Input] func(ctx context.Context, k *kit.Kit, in T) (Result, error)

// Example is one illustrative invocation.
type Example struct {
	Input       map[string]any `json:"input"`
	Output      map[string]any `json:"output"`
	Explanation string         `json:"explanation"`
}

// Meta is the static description of an action.
type Meta struct {
	Name        string
	ToolName    string
	Similes     []string
	Description string
	Examples    [][]Example
}

// Info is the serializable view of an action.
type Info struct {
	Name        string          `json:"name"`
	ToolName    string          `json:"toolName"`
	Similes     []string        `json:"similes"`
	Description string          `json:"description"`
	Examples    [][]Example     `json:"examples"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Action is an immutable dispatch record.
type Action struct {
	meta     Meta
	contract *contract
	run      func(ctx context.Context, k *kit.Kit, input map[string]any) (Result, error)
}

// Define builds an Action for input type T. The input contract is reflected
// from T; a type that cannot be turned into a schema is a programming error
// and panics.
func Define[T Input](meta Meta, handler Handler[T]) *Action {
	if meta.Name == "" {
		panic("action: name is required")
	}
	c, err := newContract[T](meta.Name)
	if err != nil {
		panic(fmt.Sprintf("action %s: %v", meta.Name, err))
	}
	if meta.ToolName == "" {
		meta.ToolName = meta.Name
	}
	return &Action{
		meta:     meta,
		contract: c,
		run: func(ctx context.Context, k *kit.Kit, input map[string]any) (Result, error) {
			data, err := json.Marshal(input)
			if err != nil {
				return nil, invalidInput(meta.Name, &FieldError{Reason: "input is not serializable"})
			}
			var in T
			if err := json.Unmarshal(data, &in); err != nil {
				return nil, invalidInput(meta.Name, &FieldError{Reason: err.Error()})
			}
			if err := in.Validate(); err != nil {
				var fe *FieldError
				if stdErrors.As(err, &fe) {
					return nil, invalidInput(meta.Name, fe)
				}
				return nil, invalidInput(meta.Name, &FieldError{Reason: err.Error()})
			}
			return handler(ctx, k, in)
		},
	}
}

// Name returns the unique action name.
func (a *Action) Name() string { return a.meta.Name }

// ToolName returns the name used by tool-calling hosts.
func (a *Action) ToolName() string { return a.meta.ToolName }

// Description returns the human description.
func (a *Action) Description() string { return a.meta.Description }

// InputSchema returns the JSON schema of the input contract.
func (a *Action) InputSchema() json.RawMessage {
	return append(json.RawMessage(nil), a.contract.raw...)
}

// Info returns a copy of the action description.
func (a *Action) Info() Info {
	similes := append([]string(nil), a.meta.Similes...)
	examples := make([][]Example, len(a.meta.Examples))
	for i, group := range a.meta.Examples {
		examples[i] = append([]Example(nil), group...)
	}
	return Info{
		Name:        a.meta.Name,
		ToolName:    a.meta.ToolName,
		Similes:     similes,
		Description: a.meta.Description,
		Examples:    examples,
		InputSchema: a.InputSchema(),
	}
}

// Invoke validates input and runs the handler. It never panics: a panicking
// handler yields a HANDLER_PANIC result.
func (a *Action) Invoke(ctx context.Context, k *kit.Kit, input map[string]any) (result Result) {
	log := logger.ForAction("action", a.meta.Name)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("action handler panicked",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			result = Errorf(xerrors.CodeHandlerPanic, "action %s failed unexpectedly: %v", a.meta.Name, rec)
		}
	}()

	if input == nil {
		input = map[string]any{}
	}
	if fe := a.contract.check(input); fe != nil {
		return Failure(invalidInput(a.meta.Name, fe))
	}

	res, err := a.run(ctx, k, input)
	if err != nil {
		log.Debug("action returned error", slog.Any("error", err))
		return Failure(err)
	}
	if res == nil {
		res = Success(nil)
	}
	if res.Status() == "" {
		res["status"] = StatusSuccess
	}
	return res
}

func invalidInput(action string, fe *FieldError) error {
	if fe.Field == "" {
		return xerrors.Newf(xerrors.CodeInvalidInput, "invalid input for %s: %s", action, fe.Reason)
	}
	return xerrors.New(xerrors.CodeInvalidInput,
		fmt.Sprintf("invalid input for %s: %s %s", action, fe.Field, fe.Reason),
		xerrors.WithMetadata("field", fe.Field))
}
