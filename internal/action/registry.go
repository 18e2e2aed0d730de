package action

import (
	"context"
	"sort"
	"sync"

	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/kit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "storyagent/action"

// Registry maps action names to dispatch records. It is safe for concurrent
// use; actions are registered at startup and never removed.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*Action
	tools   map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]*Action),
		tools:   make(map[string]string),
	}
}

// Register adds actions. A name or tool name that is already taken yields a
// DUPLICATE_ACTION error and leaves the registry unchanged for that action.
func (r *Registry) Register(actions ...*Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range actions {
		if a == nil {
			return xerrors.New(xerrors.CodeInvalidArgument, "action is nil")
		}
		if _, exists := r.actions[a.Name()]; exists {
			return xerrors.Newf(xerrors.CodeDuplicateAction, "action %q already registered", a.Name())
		}
		if owner, exists := r.tools[a.ToolName()]; exists {
			return xerrors.Newf(xerrors.CodeDuplicateAction, "tool name %q already used by %q", a.ToolName(), owner)
		}
		r.actions[a.Name()] = a
		r.tools[a.ToolName()] = a.Name()
	}
	return nil
}

// Get retrieves an action by name.
func (r *Registry) Get(name string) (*Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// ByTool retrieves an action by its tool name.
func (r *Registry) ByTool(tool string) (*Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.tools[tool]
	if !ok {
		return nil, false
	}
	return r.actions[name], true
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all actions sorted by name.
func (r *Registry) List() []*Action {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Action, 0, len(names))
	for _, name := range names {
		out = append(out, r.actions[name])
	}
	return out
}

// Infos returns the serializable view of every action, sorted by name.
func (r *Registry) Infos() []Info {
	actions := r.List()
	out := make([]Info, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Info())
	}
	return out
}

// Invoke dispatches one call. It never returns a Go error and never panics;
// every outcome, including an unknown name, is a Result.
func (r *Registry) Invoke(ctx context.Context, k *kit.Kit, name string, input map[string]any) Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "action.invoke",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("action.name", name)))
	defer span.End()

	a, ok := r.Get(name)
	var result Result
	if !ok {
		result = Errorf(xerrors.CodeUnknownAction, "unknown action: %s", name)
	} else {
		result = a.Invoke(ctx, k, input)
	}

	span.SetAttributes(attribute.String("action.status", result.Status()))
	if !result.OK() {
		span.SetAttributes(attribute.String("action.code", result.Code()))
		span.SetStatus(codes.Error, result.Message())
	}
	return result
}
