package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

// SessionReader 读取会话
type SessionReader interface {
	GetSession(ctx context.Context, id int64) (*models.Session, error)
}

// LogReader 读取会话姿态日志（按时间升序）
type LogReader interface {
	ListLogs(ctx context.Context, sessionID int64, from, to *time.Time) ([]models.PostureLogEntry, error)
}

// Engine 会话统计服务
type Engine struct {
	sessions SessionReader
	logs     LogReader
	now      func() time.Time
	logger   *zap.Logger
}

// NewEngine 创建统计服务；now 为 nil 时使用 time.Now
func NewEngine(sessions SessionReader, logs LogReader, now func() time.Time, logger *zap.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{sessions: sessions, logs: logs, now: now, logger: logger}
}

// SessionStats 计算指定会话的统计
func (e *Engine) SessionStats(ctx context.Context, sessionID int64) (*Stats, []models.PostureLogEntry, error) {
	session, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}

	entries, err := e.logs.ListLogs(ctx, sessionID, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load posture logs: %w", err)
	}

	stats := Compute(entries)
	stats.SessionID = sessionID
	stats.SessionStatus = session.Status
	stats.DurationMinutes = round2(e.sessionDuration(session).Minutes())

	e.logger.Debug("Session stats computed",
		zap.Int64("session_id", sessionID),
		zap.Int("total_logs", stats.TotalLogs),
		zap.Int("score", stats.Score),
	)
	return &stats, entries, nil
}

// sessionDuration 已结束且记录了总时长时直接使用，否则按开始时间到当前计算
func (e *Engine) sessionDuration(s *models.Session) time.Duration {
	if s.Status == models.SessionCompleted && s.TotalDurationSeconds != nil {
		return time.Duration(*s.TotalDurationSeconds) * time.Second
	}
	d := e.now().Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
