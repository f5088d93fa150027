package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "posture-monitor/common/redis"
	"posture-monitor/internal/models"
)

// 默认 stream / 消费者组
const (
	DefaultFrameStream        = "posture:frames"
	DefaultFrameGroup         = "posture-workers"
	DefaultNotificationStream = "posture:notifications"
	DefaultNotificationGroup  = "posture-notifiers"
)

// StreamConfig 单个 stream 的配置
type StreamConfig struct {
	Stream string
	Group  string
	Block  time.Duration // XREADGROUP 阻塞时长，必须 > 0
}

// Message 解码后的队列消息
type Message[T any] struct {
	ID      string
	Payload T
}

// Stream 基于 Redis Streams 的 JSON 队列
// 投递语义为至多处理一次：消费方处理完成（或放弃）后 Ack，失败不重试。
type Stream[T any] struct {
	client *redis.Client
	config StreamConfig
	logger *zap.Logger
}

// FrameQueue 帧入口队列
type FrameQueue = Stream[models.Frame]

// NotificationQueue 通知出口队列
type NotificationQueue = Stream[models.NotificationJob]

// NewFrameQueue 创建帧队列
func NewFrameQueue(client *redis.Client, cfg StreamConfig, logger *zap.Logger) *FrameQueue {
	if cfg.Stream == "" {
		cfg.Stream = DefaultFrameStream
	}
	if cfg.Group == "" {
		cfg.Group = DefaultFrameGroup
	}
	return newStream[models.Frame](client, cfg, logger)
}

// NewNotificationQueue 创建通知队列
func NewNotificationQueue(client *redis.Client, cfg StreamConfig, logger *zap.Logger) *NotificationQueue {
	if cfg.Stream == "" {
		cfg.Stream = DefaultNotificationStream
	}
	if cfg.Group == "" {
		cfg.Group = DefaultNotificationGroup
	}
	return newStream[models.NotificationJob](client, cfg, logger)
}

func newStream[T any](client *redis.Client, cfg StreamConfig, logger *zap.Logger) *Stream[T] {
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	return &Stream[T]{client: client, config: cfg, logger: logger}
}

// Name stream 名称
func (s *Stream[T]) Name() string { return s.config.Stream }

// EnsureGroup 创建消费者组（幂等）
func (s *Stream[T]) EnsureGroup(ctx context.Context) error {
	return rediscommon.CreateConsumerGroup(ctx, s.client, s.config.Stream, s.config.Group)
}

// Enqueue 写入一条消息，返回消息 ID
func (s *Stream[T]) Enqueue(ctx context.Context, payload T) (string, error) {
	id, err := rediscommon.PublishJSONToStream(ctx, s.client, s.config.Stream, payload)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue to %s: %w", s.config.Stream, err)
	}
	return id, nil
}

// Read 以消费者身份读取最多 count 条新消息（阻塞 Block 时长）
// 无法解码的消息直接 Ack 丢弃并记录日志。
func (s *Stream[T]) Read(ctx context.Context, consumer string, count int64) ([]Message[T], error) {
	raw, err := rediscommon.ReadFromStream(ctx, s.client, s.config.Stream, s.config.Group, consumer, count, s.config.Block)
	if err != nil {
		return nil, fmt.Errorf("failed to read from %s: %w", s.config.Stream, err)
	}

	messages := make([]Message[T], 0, len(raw))
	for _, msg := range raw {
		var payload T
		data, err := rediscommon.MessageData(msg)
		if err == nil {
			err = json.Unmarshal(data, &payload)
		}
		if err != nil {
			s.logger.Warn("Dropping undecodable stream message",
				zap.String("stream", s.config.Stream),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			if ackErr := s.Ack(ctx, msg.ID); ackErr != nil {
				s.logger.Error("Failed to ack undecodable message", zap.Error(ackErr))
			}
			continue
		}
		messages = append(messages, Message[T]{ID: msg.ID, Payload: payload})
	}
	return messages, nil
}

// Ack 确认消息
func (s *Stream[T]) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := rediscommon.AckMessage(ctx, s.client, s.config.Stream, s.config.Group, ids...); err != nil {
		return fmt.Errorf("failed to ack on %s: %w", s.config.Stream, err)
	}
	return nil
}
