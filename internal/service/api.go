package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"posture-monitor/internal/analytics"
	"posture-monitor/internal/broadcast"
	"posture-monitor/internal/config"
	"posture-monitor/internal/ingress"
	httpapi "posture-monitor/internal/http"
	"posture-monitor/internal/metrics"
	"posture-monitor/internal/models"
	"posture-monitor/internal/queue"
)

// APIService HTTP API + 实时观看端
type APIService struct {
	config    *config.Config
	infra     *Infra
	hub       *broadcast.Hub
	listeners []broadcast.Listener
	server    *http.Server
	metrics   *metrics.Metrics
	logger    *zap.Logger

	// MQTT 帧入口及内嵌模式下的后台消费者
	workers []runner
}

type runner interface {
	Start(ctx context.Context) error
}

// NewAPIService 创建 API 服务
func NewAPIService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*APIService, error) {
	infra, err := OpenInfra(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	hub := broadcast.NewHub(broadcast.HubConfig{
		QueueSize:    cfg.Broadcast.QueueSize,
		WriteTimeout: cfg.Broadcast.WriteTimeout,
	}, m, logger)

	frames := queue.NewFrameQueue(infra.Redis, cfg.Queue.Frames, logger)
	api := httpapi.NewServer(httpapi.Deps{
		Repos:   infra.Repos,
		Frames:  frames,
		Stats:   analytics.NewEngine(infra.Repos.Sessions, infra.Repos.Logs, time.Now, logger),
		Hub:     hub,
		Metrics: m,
		DefaultSettings: models.UserSettings{
			BlurScreenshots:       cfg.Evidence.BlurDefault,
			EvidenceLockerEnabled: cfg.Evidence.EnabledDefault,
			ReportFrequency:       1,
		},
	}, logger)

	s := &APIService{
		config:    cfg,
		infra:     infra,
		hub:       hub,
		listeners: NewListeners(cfg, infra, hub, logger),
		server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		metrics: m,
		logger:  logger,
	}

	if cfg.Ingress.MQTTEnabled && infra.MQTT != nil {
		s.workers = append(s.workers,
			ingress.NewMQTTBridge(infra.MQTT, cfg.Ingress.MQTTTopic, cfg.MQTT.QoS, infra.Repos.Sessions, frames, logger))
	}

	if cfg.Consumer.Embedded {
		fc, err := NewFrameConsumer(ctx, cfg, infra, m, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		n, err := NewNotifier(ctx, cfg, infra, m, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		s.workers = append(s.workers, fc, n)
		logger.Info("Running frame consumer and notifier in-process")
	}
	return s, nil
}

// Start 阻塞运行直到 ctx 取消或任一组件失败
func (s *APIService) Start(ctx context.Context) error {
	for _, l := range s.listeners {
		if err := l.Start(ctx); err != nil {
			return fmt.Errorf("failed to start broadcast listener: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		w := w
		g.Go(func() error { return w.Start(gctx) })
	}

	g.Go(func() error {
		s.logger.Info("HTTP server listening", zap.String("addr", s.config.HTTP.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Stop 释放资源
func (s *APIService) Stop() error {
	s.logger.Info("Stopping API service")
	for _, l := range s.listeners {
		if err := l.Stop(); err != nil {
			s.logger.Warn("Failed to stop broadcast listener", zap.Error(err))
		}
	}
	s.hub.Close()
	s.infra.Close()
	return nil
}
