package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"posture-monitor/common/logger"
	"posture-monitor/internal/config"
)

// Service 可启动/停止的进程主体
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

// Builder 根据配置创建服务
type Builder func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Service, error)

// Run 解析参数、加载配置、运行服务直到收到 SIGINT/SIGTERM，返回进程退出码
func Run(name string, args []string, build Builder) int {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	addr := flags.String("addr", "", "listen address (overrides HTTP_ADDR)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	// .env 不存在不是错误
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create service", zap.Error(err))
		return 1
	}
	defer svc.Stop()

	log.Info("Service starting")
	if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Service error", zap.Error(err))
		return 1
	}
	log.Info("Service stopped")
	return 0
}
