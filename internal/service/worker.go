package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"posture-monitor/internal/config"
	"posture-monitor/internal/consumer"
	"posture-monitor/internal/metrics"
)

// WorkerService 帧处理 worker
type WorkerService struct {
	config   *config.Config
	infra    *Infra
	consumer *consumer.FrameConsumer
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewWorkerService 创建 worker 服务
func NewWorkerService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*WorkerService, error) {
	infra, err := OpenInfra(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	fc, err := NewFrameConsumer(ctx, cfg, infra, m, logger)
	if err != nil {
		infra.Close()
		return nil, err
	}
	return &WorkerService{config: cfg, infra: infra, consumer: fc, metrics: m, logger: logger}, nil
}

// Start 阻塞消费直到 ctx 取消
func (s *WorkerService) Start(ctx context.Context) error {
	stopMetrics := serveMetrics(s.config.HTTP.Addr, s.metrics, s.logger)
	defer stopMetrics()

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("frame consumer: %w", err)
	}
	return nil
}

// Stop 释放资源
func (s *WorkerService) Stop() error {
	s.logger.Info("Stopping worker service")
	s.infra.Close()
	return nil
}

// serveMetrics 后台进程只暴露 /metrics 和 /health
func serveMetrics(addr string, m *metrics.Metrics, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
