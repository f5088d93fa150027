package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestFrameQueue_RoundTripPreservesOrder(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	q := NewFrameQueue(client, StreamConfig{Block: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, q.EnsureGroup(ctx))
	assert.Equal(t, DefaultFrameStream, q.Name())

	received := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, models.Frame{SessionID: 5, Data: []byte{byte(i), 0xff}, ReceivedAt: received.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}

	msgs, err := q.Read(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, int64(5), m.Payload.SessionID)
		assert.Equal(t, []byte{byte(i), 0xff}, m.Payload.Data)
		assert.True(t, received.Add(time.Duration(i)*time.Second).Equal(m.Payload.ReceivedAt))
	}

	require.NoError(t, q.Ack(ctx, msgs[0].ID, msgs[1].ID, msgs[2].ID))
	pending, err := client.XPending(ctx, DefaultFrameStream, DefaultFrameGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestNotificationQueue_Enqueue(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	q := NewNotificationQueue(client, StreamConfig{Block: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, q.EnsureGroup(ctx))

	job := models.NotificationJob{ID: "job-1", Type: "SLOUCH_ALERT", Message: "sit up", SessionID: 9}
	id, err := q.Enqueue(ctx, job)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := q.Read(ctx, "notifier-1", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "job-1", msgs[0].Payload.ID)
	assert.Equal(t, int64(9), msgs[0].Payload.SessionID)
}

func TestStream_DropsUndecodableMessages(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	q := NewFrameQueue(client, StreamConfig{Block: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, q.EnsureGroup(ctx))

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: DefaultFrameStream,
		Values: map[string]interface{}{"data": "{not json"},
	}).Err())
	_, err := q.Enqueue(ctx, models.Frame{SessionID: 1})
	require.NoError(t, err)

	msgs, err := q.Read(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].Payload.SessionID)
}

func TestStream_ReadFailsWithoutServer(t *testing.T) {
	mr, client := setupRedis(t)
	q := NewFrameQueue(client, StreamConfig{Block: 10 * time.Millisecond}, zap.NewNop())
	mr.Close()

	_, err := q.Read(context.Background(), "worker-1", 1)
	assert.Error(t, err)
}
