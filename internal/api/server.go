package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"StoryAgent-Kit/internal/agent"
	"StoryAgent-Kit/internal/auth"
	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/observability/metrics"
	"StoryAgent-Kit/internal/task"
	"StoryAgent-Kit/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Server 负责暴露 REST 接口，供外部驱动 Agent 执行动作。
type Server struct {
	addr    string
	agent   *agent.Agent
	tasks   *task.Service
	auth    *auth.Service
	limiter *rate.Limiter
}

// Option 定义可选的服务配置。
type Option func(*Server)

// WithTaskService 启用异步任务接口。
func WithTaskService(tasks *task.Service) Option {
	return func(s *Server) {
		s.tasks = tasks
	}
}

// WithAuth 配置 API Key 认证。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) {
		s.auth = svc
	}
}

// WithRateLimit 配置全局令牌桶限流，rps <= 0 表示不限流。
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = int(rps)
			if burst < 1 {
				burst = 1
			}
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, ag *agent.Agent, opts ...Option) *Server {
	s := &Server{addr: addr, agent: ag}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由树。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /api/v1/actions", "actions.list", s.handleListActions, auth.PermActionsRead)
	s.route(mux, "POST /api/v1/actions/{name}", "actions.invoke", s.handleInvoke, auth.PermActionsInvoke)
	s.route(mux, "POST /api/v1/tasks", "tasks.create", s.handleCreateTask, auth.PermTasksWrite)
	s.route(mux, "GET /api/v1/tasks", "tasks.list", s.handleListTasks, auth.PermTasksRead)
	s.route(mux, "GET /api/v1/tasks/{id}", "tasks.get", s.handleGetTask, auth.PermTasksRead)
	s.route(mux, "GET /api/v1/invocations", "invocations.list", s.handleHistory, auth.PermHistoryRead)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return s.rateLimit(mux)
}

func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.HandlerFunc, perms ...string) {
	var handler http.Handler = h
	if s.auth != nil {
		handler = s.auth.Middleware(perms...)(handler)
	}
	mux.Handle(pattern, instrument(name, handler))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("API 服务启动", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleListActions(w http.ResponseWriter, _ *http.Request) {
	if s.agent == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": s.agent.Actions()})
}

// handleInvoke 同步执行动作。请求体即动作输入；无论动作成败都返回 200 与 Result。
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化"))
		return
	}
	input, err := decodeInput(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.agent.Execute(r.Context(), agent.TaskRequest{
		ID:     r.Header.Get("X-Request-ID"),
		Action: r.PathValue("name"),
		Input:  input,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Invocation-ID", out.ID)
	w.Header().Set("X-Duration-Ms", strconv.FormatInt(out.DurationMS, 10))
	writeJSON(w, http.StatusOK, out.Result)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未启用"))
		return
	}
	var req agent.TaskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	created, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.L().Debug("任务已提交",
		slog.String("task_id", created.ID),
		slog.String("action", created.Action),
		slog.String("caller", auth.Caller(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未启用"))
		return
	}
	found, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未启用"))
		return
	}
	query := r.URL.Query()
	opts := []task.ListOption{
		task.WithLimit(intParam(query.Get("limit"), 20)),
		task.WithOffset(intParam(query.Get("offset"), 0)),
		task.WithQuery(query.Get("q")),
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, task.Status(strings.TrimSpace(part)))
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := query.Get("action"); raw != "" {
		opts = append(opts, task.WithActions(strings.Split(raw, ",")...))
	}
	if query.Get("order") == "asc" {
		opts = append(opts, task.Oldest())
	}

	tasks, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.tasks.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "stats": stats})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化"))
		return
	}
	records, err := s.agent.ListHistory(r.Context(), intParam(r.URL.Query().Get("limit"), 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invocations": records})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if s.agent == nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody("RATE_LIMITED", "请求过于频繁"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeInput 读取可选的 JSON 对象请求体，空请求体视为无输入。
func decodeInput(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取请求体失败")
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, nil
	}
	var input map[string]any
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体必须是 JSON 对象")
	}
	return input, nil
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
