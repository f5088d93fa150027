package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

var logCols = []string{"id", "session_id", "timestamp", "posture_status", "neck_angle", "torso_angle", "distance_score", "confidence", "landmarks"}

func f64(v float64) *float64 { return &v }

func TestPostgresInsertLog(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresPostureLogsRepo(db, zap.NewNop())
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	entry := &models.PostureLogEntry{
		SessionID:  7,
		Timestamp:  ts,
		Status:     models.StatusSlouching,
		NeckAngle:  f64(42),
		Confidence: f64(0.9),
		Landmarks:  map[string]models.Landmark{"0": {X: 0.5, Y: 0.2, Presence: 1}},
	}

	mock.ExpectQuery(`INSERT INTO posture_logs`).
		WithArgs(int64(7), ts, "SLOUCHING", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), `{"0":{"x":0.5,"y":0.2,"presence":1}}`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))

	require.NoError(t, repo.InsertLog(context.Background(), entry))
	assert.Equal(t, int64(99), entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListLogs_WithRange(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresPostureLogsRepo(db, zap.NewNop())
	from := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`timestamp >= \$2 ORDER BY timestamp ASC`).
		WithArgs(int64(7), from).
		WillReturnRows(sqlmock.NewRows(logCols).
			AddRow(1, 7, from, "GOOD", 5.0, 88.0, 0.8, 0.95, nil).
			AddRow(2, 7, from.Add(time.Second), "NO_PERSON", nil, nil, nil, 0.0, `{"0":{"x":0.1,"y":0.1,"presence":0.5}}`))

	logs, err := repo.ListLogs(context.Background(), 7, &from, nil)

	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.StatusGood, logs[0].Status)
	require.NotNil(t, logs[0].NeckAngle)
	assert.Equal(t, 5.0, *logs[0].NeckAngle)
	assert.Nil(t, logs[1].NeckAngle)
	assert.Equal(t, 0.5, logs[1].Landmarks["0"].Presence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestLog_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresPostureLogsRepo(db, zap.NewNop())

	mock.ExpectQuery(`ORDER BY timestamp DESC`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(logCols))

	_, err := repo.LatestLog(context.Background(), 7)
	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresHistory_Pagination(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresPostureLogsRepo(db, zap.NewNop())

	mock.ExpectQuery(`OFFSET \$2 LIMIT \$3`).
		WithArgs(int64(7), 10, 1000).
		WillReturnRows(sqlmock.NewRows(logCols))

	logs, err := repo.History(context.Background(), 7, 10, 5000)
	require.NoError(t, err)
	assert.Empty(t, logs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserSettings(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresUserSettingsRepo(db, zap.NewNop())
	now := time.Now()

	mock.ExpectQuery(`FROM user_settings`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "blur_screenshots", "enabled_evidence_locker", "report_frequency", "updated_at"}))
	_, err := repo.GetUserSettings(context.Background(), 3)
	assert.ErrorIs(t, err, models.ErrNotFound)

	mock.ExpectQuery(`INSERT INTO user_settings`).
		WithArgs(int64(3), false, true, 7).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	settings := &models.UserSettings{UserID: 3, BlurScreenshots: false, EvidenceLockerEnabled: true, ReportFrequency: 7}
	require.NoError(t, repo.UpsertUserSettings(context.Background(), settings))
	assert.Equal(t, now, settings.UpdatedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAlerts(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresAlertsRepo(db, zap.NewNop())
	sent := time.Now()

	mock.ExpectQuery(`INSERT INTO alerts`).
		WithArgs(int64(7), sent, "SLOUCH_ALERT", "warning", "sit up").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	alert := &models.Alert{SessionID: 7, SentAt: sent, AlertType: "SLOUCH_ALERT", Severity: "warning", Message: "sit up"}
	require.NoError(t, repo.InsertAlert(context.Background(), alert))
	assert.Equal(t, int64(5), alert.ID)

	mock.ExpectQuery(`FROM alerts`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "sent_at", "alert_type", "severity", "message"}).
			AddRow(5, 7, sent, "SLOUCH_ALERT", "warning", "sit up"))
	alerts, err := repo.ListAlerts(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "sit up", alerts[0].Message)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUser_DuplicateEmail(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresUsersRepo(db, zap.NewNop())

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("a@example.com", "Ada").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateUser(context.Background(), &models.User{Email: "a@example.com", Name: "Ada"})
	assert.True(t, errors.Is(err, ErrEmailTaken))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListUsers(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresUsersRepo(db, zap.NewNop())
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, email, name, created_at\s+FROM users\s+ORDER BY id ASC`).
		WithArgs(0, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "created_at"}).
			AddRow(1, models.DefaultUserEmail, models.DefaultUserName, created).
			AddRow(2, "a@example.com", "Ada", created))

	users, err := repo.ListUsers(context.Background(), -5, 0)

	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, models.DefaultUserID, users[0].ID)
	assert.Equal(t, "Ada", users[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
