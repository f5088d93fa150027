package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posture-monitor/internal/models"
	"posture-monitor/internal/queue"
	"posture-monitor/internal/repository"
)

type failingAlerts struct{}

func (failingAlerts) InsertAlert(ctx context.Context, a *models.Alert) error {
	return errors.New("db down")
}

type capturePublisher struct {
	channel string
	payload []byte
}

func (c *capturePublisher) PublishRaw(ctx context.Context, channel string, payload []byte) error {
	c.channel, c.payload = channel, payload
	return nil
}

func TestNotifier_EndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := queue.NewNotificationQueue(client, queue.StreamConfig{Block: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, jobs.EnsureGroup(ctx))
	repo := repository.NewMemoryStore(nil)

	sub := client.Subscribe(ctx, "notifications")
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	defer sub.Close()

	n := NewNotifier(Config{}, jobs, repo, NewRedisChannelPublisher(client), nil, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- n.Start(ctx) }()

	_, err = jobs.Enqueue(ctx, models.NotificationJob{ID: "j1", Type: "SLOUCH_ALERT", Message: "You have been slouching for over 8 seconds!", SessionID: 4})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		var got Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "NOTIFICATION", got.Type)
		assert.Equal(t, "SLOUCH_ALERT", got.Title)
		assert.Equal(t, int64(4), got.SessionID)
		assert.NotZero(t, got.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not published")
	}

	require.Eventually(t, func() bool {
		alerts, _ := repo.ListAlerts(ctx, 4)
		return len(alerts) == 1
	}, time.Second, 10*time.Millisecond)
	alerts, _ := repo.ListAlerts(ctx, 4)
	assert.Equal(t, DefaultSeverity, alerts[0].Severity)

	cancel()
	require.NoError(t, <-done)
}

func TestNotifier_HandlePublishesEvenWhenRecordFails(t *testing.T) {
	pub := &capturePublisher{}
	n := NewNotifier(Config{Channel: "alerts"}, nil, failingAlerts{}, pub, nil, zap.NewNop())
	n.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	err := n.Handle(context.Background(), models.NotificationJob{ID: "j2", Type: "SLOUCH_ALERT", Message: "m", SessionID: 1})

	assert.Error(t, err)
	assert.Equal(t, "alerts", pub.channel)
	assert.JSONEq(t, `{"type":"NOTIFICATION","title":"SLOUCH_ALERT","message":"m","timestamp":1700000000,"session_id":1}`, string(pub.payload))
}

func TestNotifier_HandleWithoutSessionSkipsRecord(t *testing.T) {
	pub := &capturePublisher{}
	n := NewNotifier(Config{}, nil, failingAlerts{}, pub, nil, zap.NewNop())

	require.NoError(t, n.Handle(context.Background(), models.NotificationJob{ID: "j3", Type: "BREAK_REMINDER", Message: "stretch"}))
	assert.Equal(t, "notifications", pub.channel)
}
