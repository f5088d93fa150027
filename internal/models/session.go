package models

import "time"

// 会话状态
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionPaused    = "paused"
)

// User 用户
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// 默认用户，建库时写入
const (
	DefaultUserID    int64 = 1
	DefaultUserEmail       = "user@posturemonitor.local"
	DefaultUserName        = "Default User"
)

// Session 监测会话
type Session struct {
	ID                   int64      `json:"id"`
	UserID               int64      `json:"user_id"`
	StartedAt            time.Time  `json:"started_at"`
	EndedAt              *time.Time `json:"ended_at"`
	TotalDurationSeconds *int       `json:"total_duration_seconds"`
	Status               string     `json:"status"`
}

// IsActive 会话是否处于 active 状态
func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

// UserSettings 用户隐私/证据设置
// BlurScreenshots: 保存证据前是否对人脸区域模糊
// EvidenceLockerEnabled: 是否保存证据快照
type UserSettings struct {
	UserID                int64     `json:"user_id"`
	BlurScreenshots       bool      `json:"blur_screenshots"`
	EvidenceLockerEnabled bool      `json:"enabled_evidence_locker"`
	ReportFrequency       int       `json:"report_frequency"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Alert 已发送的提醒
type Alert struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	SentAt    time.Time `json:"sent_at"`
	AlertType string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}
