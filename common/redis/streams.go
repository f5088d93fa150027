package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamMessage Redis Streams 消息
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// PublishJSONToStream 发布 JSON 消息到 Redis Streams（字段 data + timestamp）
func PublishJSONToStream(ctx context.Context, client *redis.Client, stream string, data interface{}) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream payload: %w", err)
	}

	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
}

// ReadFromStream 从 Redis Streams 读取消息（XREADGROUP，阻塞 block 时长）
func ReadFromStream(ctx context.Context, client *redis.Client, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, s := range streams {
		for _, msg := range s.Messages {
			messages = append(messages, StreamMessage{
				Stream: s.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}
	return messages, nil
}

// AckMessage 确认消息已处理
func AckMessage(ctx context.Context, client *redis.Client, stream, group string, ids ...string) error {
	return client.XAck(ctx, stream, group, ids...).Err()
}

// CreateConsumerGroup 创建消费者组（stream 不存在时一并创建，组已存在时忽略）
func CreateConsumerGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

// MessageData 取出 PublishJSONToStream 写入的 data 字段
func MessageData(msg StreamMessage) ([]byte, error) {
	raw, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("stream message %s has no data field", msg.ID)
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("stream message %s data is %T, want string", msg.ID, raw)
	}
	return []byte(s), nil
}
