package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

// PostgresUserSettingsRepo 用户设置（PostgreSQL）
type PostgresUserSettingsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresUserSettingsRepo(db *sql.DB, logger *zap.Logger) *PostgresUserSettingsRepo {
	return &PostgresUserSettingsRepo{db: db, logger: logger}
}

var _ UserSettingsRepo = (*PostgresUserSettingsRepo)(nil)

func (r *PostgresUserSettingsRepo) GetUserSettings(ctx context.Context, userID int64) (*models.UserSettings, error) {
	query := `
		SELECT user_id, blur_screenshots, enabled_evidence_locker, report_frequency, updated_at
		FROM user_settings
		WHERE user_id = $1`

	var s models.UserSettings
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID,
		&s.BlurScreenshots,
		&s.EvidenceLockerEnabled,
		&s.ReportFrequency,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user settings: %w", err)
	}
	return &s, nil
}

func (r *PostgresUserSettingsRepo) UpsertUserSettings(ctx context.Context, settings *models.UserSettings) error {
	query := `
		INSERT INTO user_settings (user_id, blur_screenshots, enabled_evidence_locker, report_frequency, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			blur_screenshots = EXCLUDED.blur_screenshots,
			enabled_evidence_locker = EXCLUDED.enabled_evidence_locker,
			report_frequency = EXCLUDED.report_frequency,
			updated_at = now()
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		settings.UserID,
		settings.BlurScreenshots,
		settings.EvidenceLockerEnabled,
		settings.ReportFrequency,
	).Scan(&settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user settings: %w", err)
	}
	return nil
}
