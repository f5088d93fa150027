package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

const logColumns = `id, session_id, timestamp, posture_status, neck_angle, torso_angle, distance_score, confidence, landmarks`

// PostgresPostureLogsRepo 姿态日志存储（PostgreSQL）
type PostgresPostureLogsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPostureLogsRepo 创建姿态日志存储
func NewPostgresPostureLogsRepo(db *sql.DB, logger *zap.Logger) *PostgresPostureLogsRepo {
	return &PostgresPostureLogsRepo{db: db, logger: logger}
}

var _ PostureLogsRepo = (*PostgresPostureLogsRepo)(nil)

func scanLog(row rowScanner) (*models.PostureLogEntry, error) {
	var e models.PostureLogEntry
	var status string
	var neck, torso, distance, confidence sql.NullFloat64
	var landmarks sql.NullString
	if err := row.Scan(&e.ID, &e.SessionID, &e.Timestamp, &status, &neck, &torso, &distance, &confidence, &landmarks); err != nil {
		return nil, err
	}
	e.Status = models.PostureStatus(status)
	e.NeckAngle = nullFloat(neck)
	e.TorsoAngle = nullFloat(torso)
	e.DistanceScore = nullFloat(distance)
	e.Confidence = nullFloat(confidence)
	e.Landmarks = parseLandmarks(landmarks)
	return &e, nil
}

// InsertLog 写入后回填 ID
func (r *PostgresPostureLogsRepo) InsertLog(ctx context.Context, entry *models.PostureLogEntry) error {
	landmarks, err := landmarksJSON(entry.Landmarks)
	if err != nil {
		return fmt.Errorf("failed to marshal landmarks: %w", err)
	}

	query := `
		INSERT INTO posture_logs (session_id, timestamp, posture_status, neck_angle, torso_angle, distance_score, confidence, landmarks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err = r.db.QueryRowContext(ctx, query,
		entry.SessionID,
		entry.Timestamp,
		string(entry.Status),
		entry.NeckAngle,
		entry.TorsoAngle,
		entry.DistanceScore,
		entry.Confidence,
		landmarks,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert posture log: %w", err)
	}
	return nil
}

func (r *PostgresPostureLogsRepo) ListLogs(ctx context.Context, sessionID int64, from, to *time.Time) ([]models.PostureLogEntry, error) {
	where := []string{"session_id = $1"}
	args := []any{sessionID}
	if from != nil {
		args = append(args, *from)
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		where = append(where, fmt.Sprintf("timestamp <= $%d", len(args)))
	}

	query := `SELECT ` + logColumns + ` FROM posture_logs WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY timestamp ASC, id ASC`

	return r.queryLogs(ctx, query, args...)
}

func (r *PostgresPostureLogsRepo) LatestLog(ctx context.Context, sessionID int64) (*models.PostureLogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM posture_logs WHERE session_id = $1 ORDER BY timestamp DESC, id DESC LIMIT 1`

	e, err := scanLog(r.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest posture log: %w", err)
	}
	return e, nil
}

func (r *PostgresPostureLogsRepo) History(ctx context.Context, sessionID int64, skip, limit int) ([]models.PostureLogEntry, error) {
	skip, limit = normalizePage(skip, limit)

	query := `SELECT ` + logColumns + ` FROM posture_logs WHERE session_id = $1 ORDER BY timestamp DESC, id DESC OFFSET $2 LIMIT $3`

	return r.queryLogs(ctx, query, sessionID, skip, limit)
}

func (r *PostgresPostureLogsRepo) queryLogs(ctx context.Context, query string, args ...any) ([]models.PostureLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posture logs: %w", err)
	}
	defer rows.Close()

	entries := []models.PostureLogEntry{}
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan posture log: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
