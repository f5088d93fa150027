package classifier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPDetector_Detect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "frame-bytes", string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"landmarks":[{"x":0.1,"y":0.2,"presence":0.9},{"x":0.3,"y":0.4,"presence":0.8}]}`))
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, time.Second, 0, zap.NewNop())
	pose, err := d.Detect(context.Background(), []byte("frame-bytes"))

	require.NoError(t, err)
	require.Len(t, pose.Landmarks, 2)
	assert.Equal(t, 0.3, pose.Landmarks[1].X)
}

func TestHTTPDetector_NoLandmarks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"landmarks":[]}`))
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, time.Second, 0, zap.NewNop())
	_, err := d.Detect(context.Background(), []byte("x"))

	assert.ErrorIs(t, err, ErrNoPerson)
}

func TestHTTPDetector_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, time.Second, 0, zap.NewNop())
	_, err := d.Detect(context.Background(), []byte("x"))

	assert.ErrorIs(t, err, ErrDetectorUnavailable)
}

func TestHTTPDetector_Unreachable(t *testing.T) {
	d := NewHTTPDetector("http://127.0.0.1:1", 200*time.Millisecond, 0, zap.NewNop())
	_, err := d.Detect(context.Background(), []byte("x"))

	assert.ErrorIs(t, err, ErrDetectorUnavailable)
}
