package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posture-monitor/internal/models"
	"posture-monitor/internal/state"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []models.NotificationJob
	err  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job models.NotificationJob) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return job.ID, nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var (
	keys = state.Keys{Prefix: "session:"}
	t0   = time.Unix(1_700_000_000, 0)
)

func newTestDispatcher(q *fakeQueue) (*Dispatcher, *state.MemoryStore, *testClock) {
	clock := &testClock{t: t0}
	store := state.NewMemoryStore(clock.Now)
	return NewDispatcher(DefaultConfig(), store, keys, q, zap.NewNop()), store, clock
}

// feed 按秒偏移依次送入状态，返回告警次数
func feed(t *testing.T, d *Dispatcher, clock *testClock, sessionID int64, steps []struct {
	at     time.Duration
	status models.PostureStatus
}) int {
	t.Helper()
	alerts := 0
	for _, s := range steps {
		now := t0.Add(s.at)
		clock.Set(now)
		dec, err := d.Evaluate(context.Background(), sessionID, s.status, now)
		require.NoError(t, err)
		if dec.Alerted {
			alerts++
		}
	}
	return alerts
}

type step = struct {
	at     time.Duration
	status models.PostureStatus
}

func TestEvaluate_FirstSlouchOnlyStartsStreak(t *testing.T) {
	q := &fakeQueue{}
	d, store, _ := newTestDispatcher(q)
	ctx := context.Background()

	dec, err := d.Evaluate(ctx, 1, models.StatusSlouching, t0)
	require.NoError(t, err)
	assert.True(t, dec.StreakStarted)
	assert.False(t, dec.Alerted)

	v, err := store.Get(ctx, "session:1:slouch_start")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", v)
	assert.Equal(t, 0, q.count())
}

func TestEvaluate_SustainedSlouchAlertsOncePerCooldown(t *testing.T) {
	q := &fakeQueue{}
	d, _, clock := newTestDispatcher(q)

	var steps []step
	for sec := 0; sec <= 60; sec++ {
		steps = append(steps, step{time.Duration(sec) * time.Second, models.StatusSlouching})
	}
	alerts := feed(t, d, clock, 1, steps)

	assert.Equal(t, 1, alerts)
	require.Equal(t, 1, q.count())
	job := q.jobs[0]
	assert.Equal(t, JobTypeSlouch, job.Type)
	assert.Equal(t, int64(1), job.SessionID)
	assert.Equal(t, "You have been slouching for over 8 seconds!", job.Message)
	assert.NotEmpty(t, job.ID)
	// 阈值严格大于 8s，首次告警在第 9 秒
	assert.Equal(t, t0.Add(9*time.Second), job.CreatedAt)
}

func TestEvaluate_SecondAlertAfterCooldown(t *testing.T) {
	q := &fakeQueue{}
	d, _, clock := newTestDispatcher(q)

	var steps []step
	for sec := 0; sec <= 135; sec += 3 {
		steps = append(steps, step{time.Duration(sec) * time.Second, models.StatusSlouching})
	}
	alerts := feed(t, d, clock, 1, steps)

	// 9s 告警，冷却 120s 后（129s 之后）第二次
	assert.Equal(t, 2, alerts)
}

func TestEvaluate_MomentarySlouchNeverAlerts(t *testing.T) {
	q := &fakeQueue{}
	d, store, clock := newTestDispatcher(q)

	alerts := feed(t, d, clock, 1, []step{
		{0, models.StatusGood},
		{1 * time.Second, models.StatusSlouching},
		{5 * time.Second, models.StatusSlouching},
		{10 * time.Second, models.StatusGood},
	})

	assert.Equal(t, 0, alerts)
	exists, _ := store.Exists(context.Background(), "session:1:slouch_start")
	assert.False(t, exists)
}

func TestEvaluate_GoodResetsStreak(t *testing.T) {
	q := &fakeQueue{}
	d, _, clock := newTestDispatcher(q)

	alerts := feed(t, d, clock, 1, []step{
		{0, models.StatusSlouching},
		{7 * time.Second, models.StatusSlouching},
		{8 * time.Second, models.StatusNoPerson},
		{9 * time.Second, models.StatusSlouching},
		{16 * time.Second, models.StatusSlouching},
	})
	assert.Equal(t, 0, alerts)
}

func TestEvaluate_SessionsAreIndependent(t *testing.T) {
	q := &fakeQueue{}
	d, _, clock := newTestDispatcher(q)

	a := feed(t, d, clock, 1, []step{{0, models.StatusSlouching}, {10 * time.Second, models.StatusSlouching}})
	b := feed(t, d, clock, 2, []step{{0, models.StatusSlouching}, {10 * time.Second, models.StatusSlouching}})

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestEvaluate_ConcurrentWorkersAlertOnce(t *testing.T) {
	q := &fakeQueue{}
	d, _, clock := newTestDispatcher(q)
	ctx := context.Background()

	_, err := d.Evaluate(ctx, 1, models.StatusSlouching, t0)
	require.NoError(t, err)

	now := t0.Add(10 * time.Second)
	clock.Set(now)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Evaluate(ctx, 1, models.StatusSlouching, now)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, q.count())
}

func TestEvaluate_EnqueueFailureKeepsCooldown(t *testing.T) {
	q := &fakeQueue{err: errors.New("stream unavailable")}
	d, store, _ := newTestDispatcher(q)
	ctx := context.Background()

	_, err := d.Evaluate(ctx, 1, models.StatusSlouching, t0)
	require.NoError(t, err)

	dec, err := d.Evaluate(ctx, 1, models.StatusSlouching, t0.Add(9*time.Second))
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, int64(1), dispatchErr.SessionID)
	assert.False(t, dec.Alerted)

	exists, _ := store.Exists(ctx, "session:1:alert_cooldown")
	assert.True(t, exists)

	q.err = nil
	dec, err = d.Evaluate(ctx, 1, models.StatusSlouching, t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, dec.CooldownActive)
	assert.Equal(t, 0, q.count())
}

func TestEvaluate_CorruptedStreakRestarts(t *testing.T) {
	q := &fakeQueue{}
	d, store, _ := newTestDispatcher(q)
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "session:1:slouch_start", "garbage", 0))
	dec, err := d.Evaluate(ctx, 1, models.StatusSlouching, t0)
	require.NoError(t, err)
	assert.True(t, dec.StreakStarted)

	v, _ := store.Get(ctx, "session:1:slouch_start")
	assert.Equal(t, "1700000000000", v)
}

func TestEvaluate_DefaultStreakOutlivesLongSlouch(t *testing.T) {
	q := &fakeQueue{}
	d, _, clock := newTestDispatcher(q)
	ctx := context.Background()

	_, err := d.Evaluate(ctx, 1, models.StatusSlouching, t0)
	require.NoError(t, err)

	now := t0.Add(2 * time.Hour)
	clock.Set(now)
	dec, err := d.Evaluate(ctx, 1, models.StatusSlouching, now)
	require.NoError(t, err)
	assert.False(t, dec.StreakStarted)
	assert.Equal(t, 2*time.Hour, dec.StreakDuration)
}

func TestEvaluate_StreakTTLRefreshedWhileSlouching(t *testing.T) {
	q := &fakeQueue{}
	clock := &testClock{t: t0}
	store := state.NewMemoryStore(clock.Now)
	cfg := DefaultConfig()
	cfg.StreakTTL = time.Minute
	d := NewDispatcher(cfg, store, keys, q, zap.NewNop())
	ctx := context.Background()

	var last Decision
	for sec := 0; sec <= 300; sec += 10 {
		now := t0.Add(time.Duration(sec) * time.Second)
		clock.Set(now)
		dec, err := d.Evaluate(ctx, 1, models.StatusSlouching, now)
		require.NoError(t, err)
		if sec > 0 {
			assert.False(t, dec.StreakStarted, "streak restarted at %ds", sec)
		}
		last = dec
	}
	assert.Equal(t, 300*time.Second, last.StreakDuration)

	// 超过空闲 TTL 没有新帧时连击才过期
	clock.Set(t0.Add(361 * time.Second))
	exists, _ := store.Exists(ctx, "session:1:slouch_start")
	assert.False(t, exists)
}

func TestNewDispatcher_DefaultsAndCustomThreshold(t *testing.T) {
	d := NewDispatcher(Config{}, state.NewMemoryStore(nil), keys, &fakeQueue{}, zap.NewNop())
	assert.Equal(t, DefaultThreshold, d.config.Threshold)
	assert.Equal(t, DefaultCooldown, d.config.Cooldown)

	d = NewDispatcher(Config{Threshold: 20 * time.Second}, state.NewMemoryStore(nil), keys, &fakeQueue{}, zap.NewNop())
	assert.Equal(t, "You have been slouching for over 20 seconds!", d.Message())
}
