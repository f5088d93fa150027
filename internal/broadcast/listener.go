package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Listener 订阅发布频道并转发给 Hub
// Stop 只取消订阅，不关闭已接入的观看端连接。
type Listener interface {
	Start(ctx context.Context) error
	Stop() error
}

// RedisListener Redis pub/sub 订阅
type RedisListener struct {
	client   *redis.Client
	channels []string
	hub      *Hub
	logger   *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisListener(client *redis.Client, channels []string, hub *Hub, logger *zap.Logger) *RedisListener {
	return &RedisListener{client: client, channels: channels, hub: hub, logger: logger}
}

// Start 订阅并在后台转发；订阅确认失败时返回错误
func (l *RedisListener) Start(ctx context.Context) error {
	pubsub := l.client.Subscribe(ctx, l.channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe %v: %w", l.channels, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.pubsub = pubsub
	l.cancel = cancel
	l.mu.Unlock()

	ch := pubsub.Channel()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				l.hub.Broadcast([]byte(msg.Payload))
			}
		}
	}()

	l.logger.Info("Redis listener started", zap.Strings("channels", l.channels))
	return nil
}

func (l *RedisListener) Stop() error {
	l.mu.Lock()
	pubsub, cancel := l.pubsub, l.cancel
	l.pubsub, l.cancel = nil, nil
	l.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	cancel()
	err := pubsub.Close()
	l.wg.Wait()
	l.logger.Info("Redis listener stopped")
	return err
}

// MQTTListener MQTT 订阅
type MQTTListener struct {
	client MQTTClient
	topics []string
	qos    byte
	hub    *Hub
	logger *zap.Logger

	mu      sync.Mutex
	running bool
}

func NewMQTTListener(client MQTTClient, topics []string, qos byte, hub *Hub, logger *zap.Logger) *MQTTListener {
	return &MQTTListener{client: client, topics: topics, qos: qos, hub: hub, logger: logger}
}

func (l *MQTTListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, topic := range l.topics {
		err := l.client.Subscribe(topic, l.qos, func(_ string, payload []byte) error {
			l.hub.Broadcast(payload)
			return nil
		})
		if err != nil {
			if i > 0 {
				_ = l.client.Unsubscribe(l.topics[:i]...)
			}
			return err
		}
	}
	l.running = true

	// 上下文取消时自动退订
	go func() {
		<-ctx.Done()
		if err := l.Stop(); err != nil {
			l.logger.Warn("Failed to stop MQTT listener", zap.Error(err))
		}
	}()

	l.logger.Info("MQTT listener started", zap.Strings("topics", l.topics))
	return nil
}

func (l *MQTTListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return nil
	}
	l.running = false
	if err := l.client.Unsubscribe(l.topics...); err != nil {
		return err
	}
	l.logger.Info("MQTT listener stopped")
	return nil
}
