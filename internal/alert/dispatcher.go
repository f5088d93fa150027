package alert

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"posture-monitor/internal/models"
	"posture-monitor/internal/state"
)

const (
	// JobTypeSlouch 持续驼背提醒
	JobTypeSlouch = "SLOUCH_ALERT"

	DefaultThreshold = 8 * time.Second
	DefaultCooldown  = 120 * time.Second
)

// Config 告警判定参数
type Config struct {
	Threshold time.Duration // 连续驼背超过该时长才告警（严格大于）
	Cooldown  time.Duration // 同一会话两次告警的最小间隔（冷却标记 TTL）
	StreakTTL time.Duration // 连击起点键的空闲 TTL，每个驼背帧刷新；0 表示不过期
}

// DefaultConfig 默认告警参数
func DefaultConfig() Config {
	return Config{
		Threshold: DefaultThreshold,
		Cooldown:  DefaultCooldown,
	}
}

// JobQueue 通知任务出口（Redis Streams 实现见 internal/queue）
type JobQueue interface {
	Enqueue(ctx context.Context, job models.NotificationJob) (string, error)
}

// Decision 一次判定的结果
type Decision struct {
	StreakStarted  bool          // 本帧开启了新的连击
	StreakReset    bool          // 本帧清除了连击
	StreakDuration time.Duration // 当前连击已持续时长
	CooldownActive bool          // 满足阈值但处于冷却期
	Alerted        bool          // 本帧成功投递了告警
	Job            *models.NotificationJob
}

// DispatchError 告警任务投递失败（告警被丢弃，冷却标记保留）
type DispatchError struct {
	SessionID int64
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch alert for session %d: %v", e.SessionID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher 负责连击状态迁移和告警判定
// 所有判定都基于状态存储的单键原子操作，多个 worker 并发处理同一会话时最多产生一次告警。
type Dispatcher struct {
	config Config
	store  state.Store
	keys   state.Keys
	queue  JobQueue
	logger *zap.Logger
}

// NewDispatcher 创建告警判定器
func NewDispatcher(cfg Config, store state.Store, keys state.Keys, queue JobQueue, logger *zap.Logger) *Dispatcher {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Dispatcher{
		config: cfg,
		store:  store,
		keys:   keys,
		queue:  queue,
		logger: logger,
	}
}

// Message 告警文案
func (d *Dispatcher) Message() string {
	return fmt.Sprintf("You have been slouching for over %d seconds!", int(d.config.Threshold/time.Second))
}

// Evaluate 根据本帧状态更新连击并判定是否告警
func (d *Dispatcher) Evaluate(ctx context.Context, sessionID int64, status models.PostureStatus, now time.Time) (Decision, error) {
	streakKey := d.keys.StreakKey(sessionID)

	if status != models.StatusSlouching {
		if err := d.store.Delete(ctx, streakKey); err != nil {
			return Decision{}, fmt.Errorf("failed to reset streak: %w", err)
		}
		return Decision{StreakReset: true}, nil
	}

	raw, err := d.store.Get(ctx, streakKey)
	if err != nil && !errors.Is(err, state.ErrMiss) {
		return Decision{}, fmt.Errorf("failed to read streak: %w", err)
	}

	var start time.Time
	if err == nil {
		ms, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			d.logger.Warn("Corrupted streak value, restarting streak",
				zap.Int64("session_id", sessionID),
				zap.String("value", raw),
			)
			if err := d.store.SetWithTTL(ctx, streakKey, formatMillis(now), d.config.StreakTTL); err != nil {
				return Decision{}, fmt.Errorf("failed to restart streak: %w", err)
			}
			return Decision{StreakStarted: true}, nil
		}
		start = time.UnixMilli(ms)
		if d.config.StreakTTL > 0 {
			if _, err := d.store.Touch(ctx, streakKey, d.config.StreakTTL); err != nil {
				return Decision{}, fmt.Errorf("failed to refresh streak: %w", err)
			}
		}
	} else {
		// 第一次观测到驼背只开启连击；并发写入时以先写入者为准
		if _, err := d.store.SetIfAbsent(ctx, streakKey, formatMillis(now), d.config.StreakTTL); err != nil {
			return Decision{}, fmt.Errorf("failed to start streak: %w", err)
		}
		return Decision{StreakStarted: true}, nil
	}

	elapsed := now.Sub(start)
	decision := Decision{StreakDuration: elapsed}
	if elapsed <= d.config.Threshold {
		return decision, nil
	}

	created, err := d.store.SetIfAbsent(ctx, d.keys.CooldownKey(sessionID), "1", d.config.Cooldown)
	if err != nil {
		return decision, fmt.Errorf("failed to set cooldown: %w", err)
	}
	if !created {
		decision.CooldownActive = true
		return decision, nil
	}

	job := models.NotificationJob{
		ID:        uuid.NewString(),
		Type:      JobTypeSlouch,
		Message:   d.Message(),
		SessionID: sessionID,
		CreatedAt: now,
	}
	if _, err := d.queue.Enqueue(ctx, job); err != nil {
		return decision, &DispatchError{SessionID: sessionID, Err: err}
	}

	d.logger.Info("Slouch alert dispatched",
		zap.Int64("session_id", sessionID),
		zap.String("job_id", job.ID),
		zap.Duration("streak", elapsed),
	)
	decision.Alerted = true
	decision.Job = &job
	return decision, nil
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
