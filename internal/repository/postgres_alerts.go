package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

// PostgresAlertsRepo 告警记录（PostgreSQL）
type PostgresAlertsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresAlertsRepo(db *sql.DB, logger *zap.Logger) *PostgresAlertsRepo {
	return &PostgresAlertsRepo{db: db, logger: logger}
}

var _ AlertsRepo = (*PostgresAlertsRepo)(nil)

func (r *PostgresAlertsRepo) InsertAlert(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (session_id, sent_at, alert_type, severity, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var sessionID any
	if alert.SessionID > 0 {
		sessionID = alert.SessionID
	}
	err := r.db.QueryRowContext(ctx, query,
		sessionID,
		alert.SentAt,
		alert.AlertType,
		alert.Severity,
		alert.Message,
	).Scan(&alert.ID)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (r *PostgresAlertsRepo) ListAlerts(ctx context.Context, sessionID int64) ([]models.Alert, error) {
	query := `
		SELECT id, session_id, sent_at, alert_type, severity, message
		FROM alerts
		WHERE session_id = $1
		ORDER BY sent_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		var sid sql.NullInt64
		if err := rows.Scan(&a.ID, &sid, &a.SentAt, &a.AlertType, &a.Severity, &a.Message); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.SessionID = sid.Int64
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
