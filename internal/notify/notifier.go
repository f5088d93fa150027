package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"posture-monitor/internal/metrics"
	"posture-monitor/internal/models"
	"posture-monitor/internal/queue"
)

// DefaultSeverity 告警级别
const DefaultSeverity = "warning"

// JobSource 通知任务队列（*queue.NotificationQueue 实现）
type JobSource interface {
	Read(ctx context.Context, consumer string, count int64) ([]queue.Message[models.NotificationJob], error)
	Ack(ctx context.Context, ids ...string) error
}

// AlertWriter 告警落库
type AlertWriter interface {
	InsertAlert(ctx context.Context, alert *models.Alert) error
}

// ChannelPublisher 向频道发布原始消息
type ChannelPublisher interface {
	PublishRaw(ctx context.Context, channel string, payload []byte) error
}

// RedisChannelPublisher go-redis PUBLISH
type RedisChannelPublisher struct {
	client *redis.Client
}

func NewRedisChannelPublisher(client *redis.Client) *RedisChannelPublisher {
	return &RedisChannelPublisher{client: client}
}

func (p *RedisChannelPublisher) PublishRaw(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// Message 推送给观看端的通知
type Message struct {
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
	SessionID int64   `json:"session_id,omitempty"`
}

// Config 通知消费者配置
type Config struct {
	Name         string
	Channel      string
	BatchSize    int64
	ErrorBackoff time.Duration
}

// Notifier 消费通知任务：记录告警并推送到通知频道
type Notifier struct {
	config    Config
	source    JobSource
	alerts    AlertWriter
	publisher ChannelPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *zap.Logger
}

// NewNotifier 创建通知消费者
func NewNotifier(cfg Config, source JobSource, alerts AlertWriter, publisher ChannelPublisher, m *metrics.Metrics, logger *zap.Logger) *Notifier {
	if cfg.Name == "" {
		cfg.Name = "posture-notifier"
	}
	if cfg.Channel == "" {
		cfg.Channel = "notifications"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Notifier{
		config:    cfg,
		source:    source,
		alerts:    alerts,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
		logger:    logger,
	}
}

// Start 阻塞消费直到 ctx 取消
func (n *Notifier) Start(ctx context.Context) error {
	n.logger.Info("Notifier started", zap.String("consumer", n.config.Name))

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Notifier stopped")
			return nil
		default:
		}

		jobs, err := n.source.Read(ctx, n.config.Name, n.config.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				n.logger.Info("Notifier stopped")
				return nil
			}
			n.logger.Error("Failed to read notification jobs", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(n.config.ErrorBackoff):
			}
			continue
		}

		work := context.WithoutCancel(ctx)
		for _, msg := range jobs {
			if err := n.Handle(work, msg.Payload); err != nil {
				n.logger.Error("Failed to handle notification job",
					zap.String("job_id", msg.Payload.ID),
					zap.Error(err),
				)
			}
			if err := n.source.Ack(work, msg.ID); err != nil {
				n.logger.Error("Failed to ack notification job", zap.String("message_id", msg.ID), zap.Error(err))
			}
		}
	}
}

// Handle 处理单个任务；落库失败不影响推送
func (n *Notifier) Handle(ctx context.Context, job models.NotificationJob) error {
	sentAt := n.now()

	var errs []error
	if job.SessionID > 0 {
		alert := &models.Alert{
			SessionID: job.SessionID,
			SentAt:    sentAt,
			AlertType: job.Type,
			Severity:  DefaultSeverity,
			Message:   job.Message,
		}
		if err := n.alerts.InsertAlert(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("record alert: %w", err))
		}
	}

	payload, err := json.Marshal(Message{
		Type:      "NOTIFICATION",
		Title:     job.Type,
		Message:   job.Message,
		Timestamp: float64(sentAt.UnixNano()) / float64(time.Second),
		SessionID: job.SessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.publisher.PublishRaw(ctx, n.config.Channel, payload); err != nil {
		errs = append(errs, fmt.Errorf("publish notification: %w", err))
	}

	if len(errs) > 0 {
		n.metrics.NotificationHandled("failed")
		return fmt.Errorf("notification %s: %w", job.ID, errors.Join(errs...))
	}
	n.metrics.NotificationHandled("sent")
	n.logger.Info("Notification sent",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int64("session_id", job.SessionID),
	)
	return nil
}
