package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"posture-monitor/internal/config"
	"posture-monitor/internal/metrics"
	"posture-monitor/internal/notify"
)

// NotifierService 通知 worker
type NotifierService struct {
	config   *config.Config
	infra    *Infra
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewNotifierService 创建通知服务
func NewNotifierService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*NotifierService, error) {
	infra, err := OpenInfra(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	n, err := NewNotifier(ctx, cfg, infra, m, logger)
	if err != nil {
		infra.Close()
		return nil, err
	}
	return &NotifierService{config: cfg, infra: infra, notifier: n, metrics: m, logger: logger}, nil
}

// Start 阻塞消费直到 ctx 取消
func (s *NotifierService) Start(ctx context.Context) error {
	stopMetrics := serveMetrics(s.config.HTTP.Addr, s.metrics, s.logger)
	defer stopMetrics()

	if err := s.notifier.Start(ctx); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	return nil
}

// Stop 释放资源
func (s *NotifierService) Stop() error {
	s.logger.Info("Stopping notifier service")
	s.infra.Close()
	return nil
}
