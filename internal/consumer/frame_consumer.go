package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"posture-monitor/internal/models"
	"posture-monitor/internal/pipeline"
	"posture-monitor/internal/queue"
)

// FrameSource 帧队列（*queue.FrameQueue 实现）
type FrameSource interface {
	Read(ctx context.Context, consumer string, count int64) ([]queue.Message[models.Frame], error)
	Ack(ctx context.Context, ids ...string) error
}

// FrameProcessor 单帧处理（*pipeline.Processor 实现）
type FrameProcessor interface {
	Process(ctx context.Context, frame models.Frame) (*pipeline.Result, error)
}

// Config 消费者配置
type Config struct {
	Name         string        // 消费者名（消费者组内唯一）
	Shards       int           // 分片协程数；同一会话固定落在同一分片
	BatchSize    int64         // 单次读取条数
	ShardBuffer  int           // 每个分片的待处理队列长度
	ErrorBackoff time.Duration // 读取失败后的等待时间
}

// FrameConsumer 帧队列消费者
// 按 sessionID mod Shards 分片，保证同一会话的帧按入队顺序串行处理。
type FrameConsumer struct {
	config    Config
	source    FrameSource
	processor FrameProcessor
	logger    *zap.Logger
}

// NewFrameConsumer 创建帧消费者
func NewFrameConsumer(cfg Config, source FrameSource, processor FrameProcessor, logger *zap.Logger) *FrameConsumer {
	if cfg.Name == "" {
		cfg.Name = "posture-worker"
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.ShardBuffer <= 0 {
		cfg.ShardBuffer = 64
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &FrameConsumer{config: cfg, source: source, processor: processor, logger: logger}
}

// ShardFor 会话所属分片
func (c *FrameConsumer) ShardFor(sessionID int64) int {
	idx := sessionID % int64(c.config.Shards)
	if idx < 0 {
		idx = -idx
	}
	return int(idx)
}

// Start 阻塞消费直到 ctx 取消；取消后等待已分发的帧处理完成再返回
func (c *FrameConsumer) Start(ctx context.Context) error {
	c.logger.Info("Frame consumer started",
		zap.String("consumer", c.config.Name),
		zap.Int("shards", c.config.Shards),
	)

	shards := make([]chan queue.Message[models.Frame], c.config.Shards)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan queue.Message[models.Frame], c.config.ShardBuffer)
		wg.Add(1)
		go func(in <-chan queue.Message[models.Frame]) {
			defer wg.Done()
			c.runShard(ctx, in)
		}(shards[i])
	}

	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		wg.Wait()
		c.logger.Info("Frame consumer stopped", zap.String("consumer", c.config.Name))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := c.source.Read(ctx, c.config.Name, c.config.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to read frames", zap.Error(err))
			// 继续执行，不中断
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.config.ErrorBackoff):
			}
			continue
		}

		for _, msg := range msgs {
			select {
			case shards[c.ShardFor(msg.Payload.SessionID)] <- msg:
			case <-ctx.Done():
				// 未分发的消息留在 pending 列表中
				return nil
			}
		}
	}
}

func (c *FrameConsumer) runShard(ctx context.Context, in <-chan queue.Message[models.Frame]) {
	// 已开始的帧不随 ctx 取消中断
	work := context.WithoutCancel(ctx)
	for msg := range in {
		c.handle(work, msg)
	}
}

func (c *FrameConsumer) handle(ctx context.Context, msg queue.Message[models.Frame]) {
	frame := msg.Payload
	if _, err := c.processor.Process(ctx, frame); err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			c.logger.Warn("Frame rejected",
				zap.Int64("session_id", frame.SessionID),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		} else {
			c.logger.Error("Failed to process frame",
				zap.Int64("session_id", frame.SessionID),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	// 至多处理一次：无论结果都确认
	if err := c.source.Ack(ctx, msg.ID); err != nil {
		c.logger.Error("Failed to ack frame",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}
