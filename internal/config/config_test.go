package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posture-monitor/internal/queue"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, "posture", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 8*time.Second, cfg.Alert.Threshold)
	assert.Equal(t, 120*time.Second, cfg.Alert.Cooldown)
	assert.Zero(t, cfg.Alert.StreakTTL)
	assert.Equal(t, StateBackendRedis, cfg.State.Backend)
	assert.Equal(t, 0.2, cfg.Classifier.VerticalReferenceOffset)
	assert.Equal(t, 155.0, cfg.Classifier.MinNeckAngle)
	assert.Equal(t, TransportRedis, cfg.Broadcast.Transport)
	assert.Equal(t, queue.DefaultFrameStream, cfg.Queue.Frames.Stream)
	assert.Equal(t, queue.DefaultNotificationGroup, cfg.Queue.Notifications.Group)
	assert.False(t, cfg.Evidence.EnabledDefault)
	assert.True(t, cfg.Evidence.BlurDefault)
	assert.Equal(t, 4, cfg.Consumer.Shards)
	assert.True(t, cfg.Consumer.Embedded)
	assert.False(t, cfg.NeedsMQTT())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("ALERT_SLOUCH_THRESHOLD", "20s")
	t.Setenv("ALERT_COOLDOWN", "5m")
	t.Setenv("POSTURE_MIN_NECK_ANGLE", "150")
	t.Setenv("POSTURE_VERTICAL_REFERENCE_OFFSET", "0.35")
	t.Setenv("ALERT_STREAK_TTL", "2h")
	t.Setenv("STATE_BACKEND", "Memory")
	t.Setenv("BROADCAST_TRANSPORT", "MQTT")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("EVIDENCE_ENABLED_DEFAULT", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DBEnabled)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 20*time.Second, cfg.Alert.Threshold)
	assert.Equal(t, 5*time.Minute, cfg.Alert.Cooldown)
	assert.Equal(t, 150.0, cfg.Classifier.MinNeckAngle)
	assert.Equal(t, 0.35, cfg.Classifier.VerticalReferenceOffset)
	assert.Equal(t, 2*time.Hour, cfg.Alert.StreakTTL)
	assert.Equal(t, StateBackendMemory, cfg.State.Backend)
	assert.Equal(t, TransportMQTT, cfg.Broadcast.Transport)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.True(t, cfg.Evidence.EnabledDefault)
	assert.False(t, cfg.Consumer.Embedded)
	assert.True(t, cfg.NeedsMQTT())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown transport", "BROADCAST_TRANSPORT", "kafka"},
		{"zero threshold", "ALERT_SLOUCH_THRESHOLD", "0s"},
		{"negative cooldown", "ALERT_COOLDOWN", "-1s"},
		{"quality out of range", "EVIDENCE_JPEG_QUALITY", "101"},
		{"no shards", "CONSUMER_SHARDS", "0"},
		{"unknown state backend", "STATE_BACKEND", "etcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
