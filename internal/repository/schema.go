package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		total_duration_seconds INTEGER,
		status VARCHAR(20) NOT NULL DEFAULT 'active'
	)`,
	// 每个用户同时最多一个 active 会话
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
		ON sessions(user_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS posture_logs (
		id BIGSERIAL PRIMARY KEY,
		session_id BIGINT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		timestamp TIMESTAMPTZ NOT NULL,
		posture_status VARCHAR(20) NOT NULL,
		neck_angle DOUBLE PRECISION,
		torso_angle DOUBLE PRECISION,
		distance_score DOUBLE PRECISION,
		confidence DOUBLE PRECISION,
		landmarks JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posture_logs_session_ts
		ON posture_logs(session_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS user_settings (
		user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		blur_screenshots BOOLEAN NOT NULL DEFAULT TRUE,
		enabled_evidence_locker BOOLEAN NOT NULL DEFAULT FALSE,
		report_frequency INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGSERIAL PRIMARY KEY,
		session_id BIGINT REFERENCES sessions(id) ON DELETE CASCADE,
		sent_at TIMESTAMPTZ NOT NULL,
		alert_type VARCHAR(50) NOT NULL,
		severity VARCHAR(20) NOT NULL,
		message TEXT NOT NULL
	)`,
}

// seedStatements 写入默认用户，并把 id 序列推到现有最大值之后
var seedStatements = []string{
	`INSERT INTO users (id, email, name)
		VALUES (1, 'user@posturemonitor.local', 'Default User')
		ON CONFLICT DO NOTHING`,
	`SELECT setval(pg_get_serial_sequence('users', 'id'),
		GREATEST((SELECT MAX(id) FROM users), 1))`,
}

// Migrate 创建表结构并写入默认用户（幂等）
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	for _, stmt := range seedStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to seed default user: %w", err)
		}
	}
	return nil
}
