package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"posture-monitor/internal/alert"
	"posture-monitor/internal/broadcast"
	"posture-monitor/internal/classifier"
	"posture-monitor/internal/metrics"
	"posture-monitor/internal/models"
)

// 副作用阶段
const (
	StagePersist   = "persist"
	StageEvidence  = "evidence"
	StageStreak    = "streak"
	StageDispatch  = "dispatch"
	StageBroadcast = "broadcast"
)

// StageError 某个副作用阶段失败（不影响后续阶段）
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result 单帧处理结果
type Result struct {
	Classification models.Classification
	Timestamp      time.Time
	Alerted        bool
	EvidencePath   string
	Failures       []*StageError
}

// Failed 是否有指定阶段失败
func (r *Result) Failed(stage string) bool {
	for _, f := range r.Failures {
		if f.Stage == stage {
			return true
		}
	}
	return false
}

// SessionReader 会话查询
type SessionReader interface {
	GetSession(ctx context.Context, id int64) (*models.Session, error)
}

// SettingsReader 用户设置查询
type SettingsReader interface {
	GetUserSettings(ctx context.Context, userID int64) (*models.UserSettings, error)
}

// LogWriter 姿态日志写入
type LogWriter interface {
	InsertLog(ctx context.Context, entry *models.PostureLogEntry) error
}

// EvidenceCapturer 证据截图
type EvidenceCapturer interface {
	Capture(ctx context.Context, sessionID int64, frame []byte, landmarks map[string]models.Landmark, blur bool, at time.Time) (string, error)
}

// AlertEvaluator 连击/告警判定
type AlertEvaluator interface {
	Evaluate(ctx context.Context, sessionID int64, status models.PostureStatus, now time.Time) (alert.Decision, error)
}

// Config 用户未设置时的默认值
type Config struct {
	EvidenceEnabledDefault bool
	BlurDefault            bool
}

// Deps 处理器依赖；Evidence 为 nil 时不截图
type Deps struct {
	Sessions   SessionReader
	Settings   SettingsReader
	Logs       LogWriter
	Classifier classifier.Classifier
	Evidence   EvidenceCapturer
	Alerts     AlertEvaluator
	Publisher  broadcast.Publisher
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Processor 单帧处理流水线
// 同一会话的帧必须串行调用 Process（见 internal/consumer 的分片）。
type Processor struct {
	config Config
	deps   Deps
	logger *zap.Logger
}

// NewProcessor 创建处理器
func NewProcessor(cfg Config, deps Deps, logger *zap.Logger) *Processor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Processor{config: cfg, deps: deps, logger: logger}
}

// Process 处理一帧
// 会话不存在或非 active 时返回 *models.ValidationError 且无任何副作用；
// 之后各阶段的失败记录在 Result.Failures 中，不会中断后续阶段。
func (p *Processor) Process(ctx context.Context, frame models.Frame) (*Result, error) {
	started := p.deps.Now()

	session, err := p.deps.Sessions.GetSession(ctx, frame.SessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			p.deps.Metrics.FrameRejected()
			return nil, &models.ValidationError{SessionID: frame.SessionID, Err: models.ErrSessionNotFound}
		}
		return nil, fmt.Errorf("failed to load session %d: %w", frame.SessionID, err)
	}
	if !session.IsActive() {
		p.deps.Metrics.FrameRejected()
		return nil, &models.ValidationError{SessionID: frame.SessionID, Err: models.ErrSessionNotActive}
	}

	ts := frame.ReceivedAt
	if ts.IsZero() {
		ts = started
	}

	classification := p.deps.Classifier.Classify(ctx, frame.Data)
	result := &Result{Classification: classification, Timestamp: ts}

	// 3. 持久化
	entry := models.NewPostureLogEntry(frame.SessionID, ts, classification)
	if err := p.deps.Logs.InsertLog(ctx, &entry); err != nil {
		p.fail(result, frame.SessionID, StagePersist, err)
	}

	// 4. 证据截图
	if classification.Status == models.StatusSlouching && p.deps.Evidence != nil {
		capture, blur := p.evidencePolicy(ctx, session.UserID)
		if capture {
			path, err := p.deps.Evidence.Capture(ctx, frame.SessionID, frame.Data, classification.Landmarks, blur, ts)
			if err != nil {
				p.fail(result, frame.SessionID, StageEvidence, err)
			} else {
				result.EvidencePath = path
			}
		}
	}

	// 5-6. 连击与告警
	decision, err := p.deps.Alerts.Evaluate(ctx, frame.SessionID, classification.Status, ts)
	if err != nil {
		var dispatchErr *alert.DispatchError
		if errors.As(err, &dispatchErr) {
			p.fail(result, frame.SessionID, StageDispatch, err)
		} else {
			p.fail(result, frame.SessionID, StageStreak, err)
		}
	}
	if decision.Alerted {
		result.Alerted = true
		p.deps.Metrics.AlertDispatched()
	}

	// 7. 广播（时间戳为处理时刻）
	event := models.NewPostureEvent(frame.SessionID, p.deps.Now(), classification)
	if err := p.deps.Publisher.Publish(ctx, event); err != nil {
		p.fail(result, frame.SessionID, StageBroadcast, err)
	}

	p.deps.Metrics.FrameProcessed(string(classification.Status), p.deps.Now().Sub(started))
	p.logger.Debug("Frame processed",
		zap.Int64("session_id", frame.SessionID),
		zap.String("status", string(classification.Status)),
		zap.Bool("alerted", result.Alerted),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

// evidencePolicy 返回 (是否截图, 是否打码)；用户未设置或读取失败时使用默认值
func (p *Processor) evidencePolicy(ctx context.Context, userID int64) (bool, bool) {
	capture, blur := p.config.EvidenceEnabledDefault, p.config.BlurDefault
	if p.deps.Settings == nil {
		return capture, blur
	}
	settings, err := p.deps.Settings.GetUserSettings(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			p.logger.Warn("Failed to load user settings, using defaults",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
		return capture, blur
	}
	return settings.EvidenceLockerEnabled, settings.BlurScreenshots
}

func (p *Processor) fail(result *Result, sessionID int64, stage string, err error) {
	result.Failures = append(result.Failures, &StageError{Stage: stage, Err: err})
	p.deps.Metrics.StageFailed(stage)
	p.logger.Error("Pipeline stage failed",
		zap.Int64("session_id", sessionID),
		zap.String("stage", stage),
		zap.Error(err),
	)
}
