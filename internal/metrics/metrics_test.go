package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.FrameProcessed("GOOD", 10*time.Millisecond)
	m.FrameProcessed("GOOD", 10*time.Millisecond)
	m.FrameProcessed("SLOUCHING", 10*time.Millisecond)
	m.StageFailed("persist")
	m.AlertDispatched()
	m.ViewerConnected()
	m.ViewerConnected()
	m.ViewerDisconnected()
	m.BroadcastDropped("queue_full")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesProcessed.WithLabelValues("GOOD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageFailures.WithLabelValues("persist")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsDispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.viewers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcastDrops.WithLabelValues("queue_full")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FrameProcessed("GOOD", time.Second)
		m.FrameRejected()
		m.StageFailed("x")
		m.ViewerConnected()
		m.NotificationHandled("ok")
	})
}

func TestMetrics_HandlerAndWrap(t *testing.T) {
	m := New()
	wrapped := m.WrapHandler("/teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/teapot", "418")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "posture_http_requests_total")
}
