package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"StoryAgent-Kit/internal/config"
	"StoryAgent-Kit/internal/daemon"
	"StoryAgent-Kit/pkg/logger"
)

// main 是 StoryAgent 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("storyagentd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadOrDefault("")
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()

	rt, err := daemon.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.EnableTasks(ctx); err != nil {
		return err
	}
	logger.L().Info("storyagentd 已启动", "address", cfg.Server.Address, "queue", cfg.TaskQueue.Driver)
	return rt.ServeHTTP(ctx)
}
