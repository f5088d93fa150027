package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posture-monitor/internal/broadcast"
	"posture-monitor/internal/config"
	"posture-monitor/internal/metrics"
	"posture-monitor/internal/repository"
	"posture-monitor/internal/state"
)

func testInfra(t *testing.T) (*Infra, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &Infra{
		Redis:  client,
		Repos:  repository.NewMemory(nil),
		logger: zap.NewNop(),
	}, mr
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("EVIDENCE_DIR", t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewPublisher_DefaultsToRedis(t *testing.T) {
	infra, _ := testInfra(t)
	cfg := testConfig(t)

	_, ok := NewPublisher(cfg, infra).(*broadcast.RedisPublisher)
	assert.True(t, ok)

	// MQTT 未连接时回退到 Redis
	cfg.Broadcast.Transport = config.TransportMQTT
	_, ok = NewPublisher(cfg, infra).(*broadcast.RedisPublisher)
	assert.True(t, ok)
}

func TestNewListeners_Redis(t *testing.T) {
	infra, _ := testInfra(t)
	cfg := testConfig(t)
	hub := broadcast.NewHub(broadcast.HubConfig{}, nil, zap.NewNop())
	defer hub.Close()

	listeners := NewListeners(cfg, infra, hub, zap.NewNop())
	require.Len(t, listeners, 1)
	require.NoError(t, listeners[0].Start(context.Background()))
	assert.NoError(t, listeners[0].Stop())
}

func TestNewStateStore_Backends(t *testing.T) {
	infra, _ := testInfra(t)
	cfg := testConfig(t)

	_, ok := NewStateStore(cfg, infra, zap.NewNop()).(*state.RedisStore)
	assert.True(t, ok)

	cfg.State.Backend = config.StateBackendMemory
	_, ok = NewStateStore(cfg, infra, zap.NewNop()).(*state.MemoryStore)
	assert.True(t, ok)
}

func TestNewFrameConsumer_MemoryStateBackend(t *testing.T) {
	infra, _ := testInfra(t)
	cfg := testConfig(t)
	cfg.State.Backend = config.StateBackendMemory

	fc, err := NewFrameConsumer(context.Background(), cfg, infra, metrics.New(), zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, fc)
}

func TestNewFrameConsumer_CreatesGroup(t *testing.T) {
	infra, mr := testInfra(t)
	cfg := testConfig(t)

	fc, err := NewFrameConsumer(context.Background(), cfg, infra, metrics.New(), zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, fc)
	assert.True(t, mr.Exists(cfg.Queue.Frames.Stream))
}

func TestNewNotifier_CreatesGroup(t *testing.T) {
	infra, mr := testInfra(t)
	cfg := testConfig(t)

	n, err := NewNotifier(context.Background(), cfg, infra, metrics.New(), zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, n)
	assert.True(t, mr.Exists(cfg.Queue.Notifications.Stream))
}

func TestOpenInfra_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	mr := miniredis.RunT(t)
	cfg.Redis.Addr = mr.Addr()
	mr.Close()

	_, err := OpenInfra(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenInfra_MemoryStorage(t *testing.T) {
	cfg := testConfig(t)
	mr := miniredis.RunT(t)
	cfg.Redis.Addr = mr.Addr()

	infra, err := OpenInfra(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer infra.Close()

	assert.Nil(t, infra.DB)
	assert.Nil(t, infra.MQTT)
	_, ok := infra.Repos.Sessions.(*repository.MemoryStore)
	assert.True(t, ok)
}
