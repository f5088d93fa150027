package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

// SessionsRepo 会话存储
type SessionsRepo interface {
	// StartSession 用户已有 active 会话时返回 models.ErrActiveSessionExists
	StartSession(ctx context.Context, userID int64, at time.Time) (*models.Session, error)
	// StopSession 记录结束时间和总时长；不存在返回 ErrSessionNotFound，非 active 返回 ErrSessionNotActive
	StopSession(ctx context.Context, id int64, at time.Time) (*models.Session, error)
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	ListUserSessions(ctx context.Context, userID int64, status string, skip, limit int) ([]models.Session, error)
	GetActiveSession(ctx context.Context, userID int64) (*models.Session, error)
}

// PostureLogsRepo 姿态日志存储（只追加）
type PostureLogsRepo interface {
	InsertLog(ctx context.Context, entry *models.PostureLogEntry) error
	// ListLogs 按时间升序；from/to 为空表示不限
	ListLogs(ctx context.Context, sessionID int64, from, to *time.Time) ([]models.PostureLogEntry, error)
	LatestLog(ctx context.Context, sessionID int64) (*models.PostureLogEntry, error)
	// History 按时间降序分页
	History(ctx context.Context, sessionID int64, skip, limit int) ([]models.PostureLogEntry, error)
}

// UserSettingsRepo 用户设置
type UserSettingsRepo interface {
	// GetUserSettings 未设置时返回 models.ErrNotFound
	GetUserSettings(ctx context.Context, userID int64) (*models.UserSettings, error)
	UpsertUserSettings(ctx context.Context, settings *models.UserSettings) error
}

// AlertsRepo 告警记录
type AlertsRepo interface {
	InsertAlert(ctx context.Context, alert *models.Alert) error
	ListAlerts(ctx context.Context, sessionID int64) ([]models.Alert, error)
}

// UsersRepo 用户
type UsersRepo interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	// ListUsers 按 id 升序分页
	ListUsers(ctx context.Context, skip, limit int) ([]models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// Repositories 各存储的集合，便于服务装配
type Repositories struct {
	Sessions SessionsRepo
	Logs     PostureLogsRepo
	Settings UserSettingsRepo
	Alerts   AlertsRepo
	Users    UsersRepo
}

// NewPostgres 基于 PostgreSQL 装配所有存储
func NewPostgres(db *sql.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Sessions: NewPostgresSessionsRepo(db, logger),
		Logs:     NewPostgresPostureLogsRepo(db, logger),
		Settings: NewPostgresUserSettingsRepo(db, logger),
		Alerts:   NewPostgresAlertsRepo(db, logger),
		Users:    NewPostgresUsersRepo(db, logger),
	}
}

// NewMemory DB 关闭时使用内存存储，已写入默认用户
func NewMemory(now func() time.Time) *Repositories {
	m := NewMemoryStore(now)
	m.SeedDefaultUser()
	return &Repositories{
		Sessions: m,
		Logs:     m,
		Settings: m,
		Alerts:   m,
		Users:    m,
	}
}

// --- 扫描辅助 ---

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// landmarksJSON 空关键点写 NULL
func landmarksJSON(lms map[string]models.Landmark) (any, error) {
	if len(lms) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(lms)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func parseLandmarks(raw sql.NullString) map[string]models.Landmark {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var lms map[string]models.Landmark
	if err := json.Unmarshal([]byte(raw.String), &lms); err != nil {
		return nil
	}
	return lms
}

func normalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return skip, limit
}
