package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"posture-monitor/internal/config"
	"posture-monitor/internal/service"
)

func main() {
	os.Exit(service.Run("posture-notifier", os.Args[1:], func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.Service, error) {
		return service.NewNotifierService(ctx, cfg, logger)
	}))
}
