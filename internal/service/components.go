package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"posture-monitor/internal/alert"
	"posture-monitor/internal/broadcast"
	"posture-monitor/internal/classifier"
	"posture-monitor/internal/config"
	"posture-monitor/internal/consumer"
	"posture-monitor/internal/evidence"
	"posture-monitor/internal/metrics"
	"posture-monitor/internal/notify"
	"posture-monitor/internal/pipeline"
	"posture-monitor/internal/queue"
	"posture-monitor/internal/state"
)

// NewPublisher 按配置选择广播出口
func NewPublisher(cfg *config.Config, infra *Infra) broadcast.Publisher {
	if cfg.Broadcast.Transport == config.TransportMQTT && infra.MQTT != nil {
		return broadcast.NewMQTTPublisher(infra.MQTT, cfg.Broadcast.MQTTTopic, cfg.MQTT.QoS)
	}
	return broadcast.NewRedisPublisher(infra.Redis, cfg.Broadcast.RedisChannel)
}

// NewListeners 订阅姿态广播和通知频道，转发给 hub
func NewListeners(cfg *config.Config, infra *Infra, hub *broadcast.Hub, logger *zap.Logger) []broadcast.Listener {
	if cfg.Broadcast.Transport == config.TransportMQTT && infra.MQTT != nil {
		return []broadcast.Listener{
			broadcast.NewMQTTListener(infra.MQTT, []string{cfg.Broadcast.MQTTTopic}, cfg.MQTT.QoS, hub, logger),
			broadcast.NewRedisListener(infra.Redis, []string{cfg.Broadcast.NotificationsChannel}, hub, logger),
		}
	}
	return []broadcast.Listener{
		broadcast.NewRedisListener(infra.Redis,
			[]string{cfg.Broadcast.RedisChannel, cfg.Broadcast.NotificationsChannel}, hub, logger),
	}
}

// NewStateStore 按 STATE_BACKEND 选择连击/冷却状态存储
func NewStateStore(cfg *config.Config, infra *Infra, logger *zap.Logger) state.Store {
	if cfg.State.Backend == config.StateBackendMemory {
		if !cfg.Consumer.Embedded {
			logger.Warn("STATE_BACKEND=memory is per-process, run a single worker")
		}
		return state.NewMemoryStore(time.Now)
	}
	return state.NewRedisStore(infra.Redis)
}

// NewFrameConsumer 装配分类、证据、告警和广播，返回消费帧队列的消费者
func NewFrameConsumer(ctx context.Context, cfg *config.Config, infra *Infra, m *metrics.Metrics, logger *zap.Logger) (*consumer.FrameConsumer, error) {
	frames := queue.NewFrameQueue(infra.Redis, cfg.Queue.Frames, logger)
	if err := frames.EnsureGroup(ctx); err != nil {
		return nil, err
	}
	notifications := queue.NewNotificationQueue(infra.Redis, cfg.Queue.Notifications, logger)

	var detector classifier.Detector
	if cfg.Detector.URL != "" {
		detector = classifier.NewHTTPDetector(cfg.Detector.URL, cfg.Detector.Timeout, cfg.Detector.Retries, logger)
	} else {
		logger.Warn("DETECTOR_URL not set, every frame will be classified as ERROR")
	}

	store, err := evidence.NewFileStore(cfg.Evidence.Dir, cfg.Evidence.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence store: %w", err)
	}

	dispatcher := alert.NewDispatcher(
		cfg.Alert,
		NewStateStore(cfg, infra, logger),
		state.Keys{Prefix: cfg.State.KeyPrefix},
		notifications,
		logger,
	)

	processor := pipeline.NewProcessor(
		pipeline.Config{
			EvidenceEnabledDefault: cfg.Evidence.EnabledDefault,
			BlurDefault:            cfg.Evidence.BlurDefault,
		},
		pipeline.Deps{
			Sessions:   infra.Repos.Sessions,
			Settings:   infra.Repos.Settings,
			Logs:       infra.Repos.Logs,
			Classifier: classifier.NewAdapter(detector, cfg.Classifier, logger),
			Evidence:   evidence.NewRedactor(store, cfg.Evidence.BlurSigma, logger),
			Alerts:     dispatcher,
			Publisher:  NewPublisher(cfg, infra),
			Metrics:    m,
		},
		logger,
	)

	return consumer.NewFrameConsumer(consumer.Config{
		Name:      cfg.Consumer.Name,
		Shards:    cfg.Consumer.Shards,
		BatchSize: int64(cfg.Consumer.BatchSize),
	}, frames, processor, logger), nil
}

// NewNotifier 装配通知消费者
func NewNotifier(ctx context.Context, cfg *config.Config, infra *Infra, m *metrics.Metrics, logger *zap.Logger) (*notify.Notifier, error) {
	jobs := queue.NewNotificationQueue(infra.Redis, cfg.Queue.Notifications, logger)
	if err := jobs.EnsureGroup(ctx); err != nil {
		return nil, err
	}
	return notify.NewNotifier(notify.Config{
		Name:    cfg.Consumer.Name + "-notifier",
		Channel: cfg.Broadcast.NotificationsChannel,
	}, jobs, infra.Repos.Alerts, notify.NewRedisChannelPublisher(infra.Redis), m, logger), nil
}
