package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

type fakeRepo struct {
	session *models.Session
	logs    []models.PostureLogEntry
}

func (f *fakeRepo) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	if f.session == nil || f.session.ID != id {
		return nil, models.ErrSessionNotFound
	}
	return f.session, nil
}

func (f *fakeRepo) ListLogs(ctx context.Context, sessionID int64, from, to *time.Time) ([]models.PostureLogEntry, error) {
	return f.logs, nil
}

func TestEngine_SessionStats_Completed(t *testing.T) {
	total := 600
	repo := &fakeRepo{
		session: &models.Session{ID: 1, StartedAt: base, Status: models.SessionCompleted, TotalDurationSeconds: &total},
		logs:    seq(time.Second, good, good, slouch),
	}
	engine := NewEngine(repo, repo, func() time.Time { return base.Add(time.Hour) }, zap.NewNop())

	stats, entries, err := engine.SessionStats(context.Background(), 1)
	require.NoError(t, err)

	assert.Len(t, entries, 3)
	assert.Equal(t, int64(1), stats.SessionID)
	assert.Equal(t, models.SessionCompleted, stats.SessionStatus)
	assert.Equal(t, 10.0, stats.DurationMinutes)
	assert.Equal(t, 67, stats.Score)
}

func TestEngine_SessionStats_ActiveUsesClock(t *testing.T) {
	repo := &fakeRepo{
		session: &models.Session{ID: 2, StartedAt: base, Status: models.SessionActive},
	}
	engine := NewEngine(repo, repo, func() time.Time { return base.Add(95 * time.Second) }, zap.NewNop())

	stats, _, err := engine.SessionStats(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 1.58, stats.DurationMinutes)
	assert.Equal(t, 0, stats.TotalLogs)
	assert.Equal(t, NoDataMessage, stats.Message)
}

func TestEngine_SessionStats_NotFound(t *testing.T) {
	engine := NewEngine(&fakeRepo{}, &fakeRepo{}, nil, zap.NewNop())

	_, _, err := engine.SessionStats(context.Background(), 9)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}
