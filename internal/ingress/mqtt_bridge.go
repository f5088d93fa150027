package ingress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	mqttcommon "posture-monitor/common/mqtt"
	"posture-monitor/internal/models"
)

// DefaultTopic 帧上报主题，格式 posture/frames/{session_id}
const DefaultTopic = "posture/frames/+"

// Subscriber MQTT 订阅能力（*mqttcommon.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// SessionReader 会话查询
type SessionReader interface {
	GetSession(ctx context.Context, id int64) (*models.Session, error)
}

// FrameEnqueuer 帧入口队列
type FrameEnqueuer interface {
	Enqueue(ctx context.Context, frame models.Frame) (string, error)
}

// MQTTBridge 把摄像端通过 MQTT 上报的原始帧转入帧队列
// payload 为 JPEG/PNG 字节，会话 ID 取自主题最后一段。
type MQTTBridge struct {
	client   Subscriber
	topic    string
	qos      byte
	sessions SessionReader
	frames   FrameEnqueuer
	now      func() time.Time
	logger   *zap.Logger
}

// NewMQTTBridge 创建 MQTT 帧入口
func NewMQTTBridge(client Subscriber, topic string, qos byte, sessions SessionReader, frames FrameEnqueuer, logger *zap.Logger) *MQTTBridge {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTBridge{
		client:   client,
		topic:    topic,
		qos:      qos,
		sessions: sessions,
		frames:   frames,
		now:      time.Now,
		logger:   logger,
	}
}

// Start 订阅主题并阻塞到 ctx 取消
func (b *MQTTBridge) Start(ctx context.Context) error {
	if err := b.client.Subscribe(b.topic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to frame topic: %w", err)
	}
	b.logger.Info("MQTT frame ingress started", zap.String("topic", b.topic))

	<-ctx.Done()

	if err := b.client.Unsubscribe(b.topic); err != nil {
		b.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	b.logger.Info("MQTT frame ingress stopped")
	return nil
}

// sessionFromTopic posture/frames/42 → 42
func sessionFromTopic(topic string) (int64, error) {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return 0, fmt.Errorf("invalid topic format: %s", topic)
	}
	id, err := strconv.ParseInt(topic[idx+1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id in topic: %s", topic)
	}
	return id, nil
}

func (b *MQTTBridge) handleMessage(topic string, payload []byte) error {
	sessionID, err := sessionFromTopic(topic)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return fmt.Errorf("empty frame on %s", topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := b.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return &models.ValidationError{SessionID: sessionID, Err: err}
		}
		return fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}
	if !session.IsActive() {
		return &models.ValidationError{SessionID: sessionID, Err: models.ErrSessionNotActive}
	}

	id, err := b.frames.Enqueue(ctx, models.Frame{
		SessionID:  sessionID,
		Data:       payload,
		ReceivedAt: b.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue frame: %w", err)
	}

	b.logger.Debug("Frame received over MQTT",
		zap.Int64("session_id", sessionID),
		zap.Int("payload_size", len(payload)),
		zap.String("stream_id", id),
	)
	return nil
}
