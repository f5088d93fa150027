package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	mqttcommon "posture-monitor/common/mqtt"
	"posture-monitor/internal/models"
)

// 默认频道
const (
	DefaultMQTTTopic            = "posture/updates"
	DefaultRedisChannel         = "posture_updates"
	DefaultNotificationsChannel = "notifications"
)

// Publisher 分类结果的发布出口
type Publisher interface {
	Publish(ctx context.Context, event models.PostureEvent) error
}

// MQTTClient 发布/订阅所需的 MQTT 能力（*mqttcommon.Client 实现）
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTPublisher 通过 MQTT 发布
type MQTTPublisher struct {
	client MQTTClient
	topic  string
	qos    byte
}

func NewMQTTPublisher(client MQTTClient, topic string, qos byte) *MQTTPublisher {
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	return &MQTTPublisher{client: client, topic: topic, qos: qos}
}

func (p *MQTTPublisher) Publish(ctx context.Context, event models.PostureEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal posture event: %w", err)
	}
	return p.client.Publish(p.topic, p.qos, false, payload)
}

// RedisPublisher 通过 Redis PUBLISH 发布
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event models.PostureEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal posture event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	return nil
}
