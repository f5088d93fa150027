package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreams_PublishReadAck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "test:stream", "g1"))
	// 重复创建不报错
	require.NoError(t, CreateConsumerGroup(ctx, client, "test:stream", "g1"))

	_, err := PublishJSONToStream(ctx, client, "test:stream", map[string]int{"session_id": 42})
	require.NoError(t, err)

	msgs, err := ReadFromStream(ctx, client, "test:stream", "g1", "c1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	data, err := MessageData(msgs[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":42}`, string(data))

	require.NoError(t, AckMessage(ctx, client, "test:stream", "g1", msgs[0].ID))
}

func TestMessageData_MissingField(t *testing.T) {
	_, err := MessageData(StreamMessage{ID: "1-0", Values: map[string]interface{}{}})
	assert.Error(t, err)
}
