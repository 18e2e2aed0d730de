// Package daemon 负责按配置装配运行时：钱包上下文、动作注册表、调用日志、
// 告警、异步任务以及对外的 HTTP 与 MCP 服务。
package daemon

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"StoryAgent-Kit/internal/agent"
	"StoryAgent-Kit/internal/api"
	"StoryAgent-Kit/internal/apps"
	"StoryAgent-Kit/internal/auth"
	"StoryAgent-Kit/internal/config"
	"StoryAgent-Kit/internal/kit"
	"StoryAgent-Kit/internal/mcp"
	"StoryAgent-Kit/internal/observability/alerting"
	"StoryAgent-Kit/internal/observability/tracing"
	"StoryAgent-Kit/internal/storage/mysql"
	"StoryAgent-Kit/internal/task"
	"StoryAgent-Kit/pkg/logger"
)

// ErrUnsupportedDriver 表示配置了未知的存储或队列驱动。
var ErrUnsupportedDriver = stdErrors.New("不支持的驱动")

// Runtime 持有一次进程运行所需的全部组件。
type Runtime struct {
	cfg       *config.Config
	kit       *kit.Kit
	agent     *agent.Agent
	tasks     *task.Service
	processor *task.Processor
	tracer    *tracing.Provider
	closers   []func() error
}

// New 根据配置创建 Agent。缺少钱包私钥时直接失败。
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{cfg: cfg}
	rt.tracer = tracing.Setup(tracing.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	})

	registry, err := apps.NewRegistry()
	if err != nil {
		return nil, err
	}

	k, err := kit.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.kit = k
	rt.closers = append(rt.closers, func() error { k.Close(); return nil })

	journal, err := openJournal(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if closer, ok := journal.(interface{ Close() error }); ok {
		rt.closers = append(rt.closers, closer.Close)
	}

	rt.agent = agent.New(registry, k,
		agent.WithJournal(journal),
		agent.WithAlertDispatcher(newAlerter(cfg.Observability.Alerting)),
	)
	return rt, nil
}

// Agent 返回装配好的 Agent。
func (rt *Runtime) Agent() *agent.Agent { return rt.agent }

// EnableTasks 创建任务存储、队列、服务与处理器。
func (rt *Runtime) EnableTasks(ctx context.Context) error {
	store, err := openTaskStore(ctx, rt.cfg.Storage.TaskStore)
	if err != nil {
		return err
	}
	queue, err := openQueue(ctx, rt.cfg.TaskQueue)
	if err != nil {
		_ = store.Close()
		return err
	}
	registry := rt.agent.Registry()
	rt.tasks = task.NewService(store, queue, task.WithActionLookup(func(name string) bool {
		_, ok := registry.Get(name)
		return ok
	}))
	rt.processor = task.NewProcessor(rt.agent, store, queue, task.WithWorkerCount(rt.cfg.TaskQueue.Worker))
	rt.closers = append(rt.closers, rt.tasks.Close)
	return nil
}

// ServeHTTP 启动任务处理器与 API 服务，阻塞直到 ctx 取消。
// 返回前会等待处理器退出，调用方随后 Close 时不会有任务仍在执行。
func (rt *Runtime) ServeHTTP(ctx context.Context) error {
	opts := []api.Option{
		api.WithRateLimit(rt.cfg.Server.RateLimitRPS, rt.cfg.Server.RateLimitBurst),
		api.WithAuth(auth.NewService(apiKeys(rt.cfg.Server.APIKeys))),
	}
	if rt.tasks != nil {
		opts = append(opts, api.WithTaskService(rt.tasks))
		stop := rt.startProcessor(ctx)
		defer stop()
	}

	server := api.NewServer(rt.cfg.Server.Address, rt.agent, opts...)
	if err := server.Start(ctx); err != nil && !stdErrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startProcessor 在后台运行任务处理器，返回的函数取消它并等待其退出。
func (rt *Runtime) startProcessor(ctx context.Context) (stop func()) {
	processorCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := rt.processor.Start(processorCtx); err != nil && !stdErrors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()
	return func() {
		cancel()
		<-done
		logger.L().Info("任务处理器已停止")
	}
}

// ServeMCP 在 stdio 上提供 MCP 工具服务。
func (rt *Runtime) ServeMCP(ctx context.Context, version string) error {
	err := mcp.NewServer(rt.agent, version).Serve(ctx)
	if err != nil && !stdErrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close 按创建的逆序释放资源。
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	if rt.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, rt.tracer.Shutdown(ctx))
	}
	return stdErrors.Join(errs...)
}

func openJournal(ctx context.Context, cfg *config.Config) (mysql.InvocationRepository, error) {
	switch cfg.Storage.Journal.Driver {
	case "", "memory", "file":
		if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
			return nil, err
		}
		return mysql.NewFileInvocationRepository(cfg.Runtime.DataDir)
	case "mysql":
		db, err := mysql.Open(ctx, mysqlConfig(cfg.Storage.Journal))
		if err != nil {
			return nil, err
		}
		return mysql.NewSQLInvocationRepository(db), nil
	default:
		return nil, fmt.Errorf("%w: journal %s", ErrUnsupportedDriver, cfg.Storage.Journal.Driver)
	}
}

func openTaskStore(ctx context.Context, cfg config.DatabaseConfig) (task.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemoryStore(), nil
	case "mysql":
		return task.NewMySQLStore(ctx, mysqlConfig(cfg))
	default:
		return nil, fmt.Errorf("%w: task store %s", ErrUnsupportedDriver, cfg.Driver)
	}
}

func openQueue(ctx context.Context, cfg config.TaskQueueConfig) (task.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemoryQueue(1024), nil
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Durable:  cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("%w: queue %s", ErrUnsupportedDriver, cfg.Driver)
	}
}

func mysqlConfig(cfg config.DatabaseConfig) mysql.Config {
	return mysql.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
	}
}

func newAlerter(cfg config.AlertingConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhook(cfg.WebhookURL, cfg.Timeout()))
	}
	return alerting.NewFanout(notifiers...)
}

func apiKeys(cfgs []config.APIKeyConfig) []auth.Key {
	keys := make([]auth.Key, 0, len(cfgs))
	for _, c := range cfgs {
		keys = append(keys, auth.Key{Name: c.Name, Secret: c.Key, Permissions: c.Permissions})
	}
	return keys
}
