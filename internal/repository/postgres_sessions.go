package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

const sessionColumns = `id, user_id, started_at, ended_at, total_duration_seconds, status`

// PostgresSessionsRepo 会话存储（PostgreSQL）
type PostgresSessionsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresSessionsRepo 创建会话存储
func NewPostgresSessionsRepo(db *sql.DB, logger *zap.Logger) *PostgresSessionsRepo {
	return &PostgresSessionsRepo{db: db, logger: logger}
}

// 确保实现了接口
var _ SessionsRepo = (*PostgresSessionsRepo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var endedAt sql.NullTime
	var total sql.NullInt64
	if err := row.Scan(&s.ID, &s.UserID, &s.StartedAt, &endedAt, &total, &s.Status); err != nil {
		return nil, err
	}
	s.EndedAt = nullTime(endedAt)
	s.TotalDurationSeconds = nullInt(total)
	return &s, nil
}

// StartSession 单条语句完成"无 active 会话才插入"
func (r *PostgresSessionsRepo) StartSession(ctx context.Context, userID int64, at time.Time) (*models.Session, error) {
	query := `
		INSERT INTO sessions (user_id, started_at, status)
		SELECT $1, $2, 'active'
		WHERE NOT EXISTS (
			SELECT 1 FROM sessions WHERE user_id = $1 AND status = 'active'
		)
		RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRowContext(ctx, query, userID, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrActiveSessionExists
		}
		// 并发启动时由 idx_sessions_one_active 拦截
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, models.ErrActiveSessionExists
		}
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	r.logger.Info("Session started",
		zap.Int64("session_id", s.ID),
		zap.Int64("user_id", userID),
	)
	return s, nil
}

func (r *PostgresSessionsRepo) StopSession(ctx context.Context, id int64, at time.Time) (*models.Session, error) {
	current, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsActive() {
		return nil, models.ErrSessionNotActive
	}

	duration := int(at.Sub(current.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	query := `
		UPDATE sessions
		SET ended_at = $2, total_duration_seconds = $3, status = 'completed'
		WHERE id = $1 AND status = 'active'
		RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id, at, duration))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// 并发 stop
			return nil, models.ErrSessionNotActive
		}
		return nil, fmt.Errorf("failed to stop session: %w", err)
	}

	r.logger.Info("Session stopped",
		zap.Int64("session_id", id),
		zap.Int("total_duration_seconds", duration),
	)
	return s, nil
}

func (r *PostgresSessionsRepo) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (r *PostgresSessionsRepo) ListUserSessions(ctx context.Context, userID int64, status string, skip, limit int) ([]models.Session, error) {
	skip, limit = normalizePage(skip, limit)

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY started_at DESC
		OFFSET $3 LIMIT $4`

	rows, err := r.db.QueryContext(ctx, query, userID, status, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *PostgresSessionsRepo) GetActiveSession(ctx context.Context, userID int64) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 AND status = 'active' LIMIT 1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return s, nil
}
