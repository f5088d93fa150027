package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"posture-monitor/internal/analytics"
	"posture-monitor/internal/broadcast"
	"posture-monitor/internal/metrics"
	"posture-monitor/internal/models"
	"posture-monitor/internal/repository"
)

// FrameEnqueuer 帧入口队列
type FrameEnqueuer interface {
	Enqueue(ctx context.Context, frame models.Frame) (string, error)
}

// StatsProvider 会话统计
type StatsProvider interface {
	SessionStats(ctx context.Context, sessionID int64) (*analytics.Stats, []models.PostureLogEntry, error)
}

// Deps HTTP 层依赖
type Deps struct {
	Repos   *repository.Repositories
	Frames  FrameEnqueuer
	Stats   StatsProvider
	Hub     *broadcast.Hub
	Metrics *metrics.Metrics
	// DefaultSettings 用户尚未保存设置时返回的值
	DefaultSettings models.UserSettings
	Now             func() time.Time
}

// Server posture-api 的 HTTP 入口
type Server struct {
	deps   Deps
	logger *zap.Logger
}

func NewServer(deps Deps, logger *zap.Logger) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Server{deps: deps, logger: logger}
}

// Router 注册全部路由
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}
	if s.deps.Hub != nil {
		r.Get("/ws", s.serveViewer)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Method(http.MethodPost, "/start", s.wrap("/sessions/start", s.startSession))
			r.Method(http.MethodPost, "/{sessionID}/stop", s.wrap("/sessions/{id}/stop", s.stopSession))
			r.Method(http.MethodGet, "/{sessionID}", s.wrap("/sessions/{id}", s.getSession))
			r.Method(http.MethodGet, "/user/{userID}", s.wrap("/sessions/user/{id}", s.listUserSessions))
			r.Method(http.MethodGet, "/user/{userID}/active", s.wrap("/sessions/user/{id}/active", s.activeSession))
		})
		r.Route("/posture", func(r chi.Router) {
			r.Method(http.MethodPost, "/frame", s.wrap("/posture/frame", s.submitFrame))
			r.Method(http.MethodGet, "/session/{sessionID}/current", s.wrap("/posture/session/{id}/current", s.currentPosture))
			r.Method(http.MethodGet, "/session/{sessionID}/history", s.wrap("/posture/session/{id}/history", s.postureHistory))
			r.Method(http.MethodGet, "/session/{sessionID}/stats", s.wrap("/posture/session/{id}/stats", s.sessionStats))
			r.Method(http.MethodGet, "/session/{sessionID}/report.xlsx", s.wrap("/posture/session/{id}/report", s.sessionReport))
		})
		r.Method(http.MethodGet, "/users", s.wrap("/users", s.listUsers))
		r.Method(http.MethodPost, "/users", s.wrap("/users", s.createUser))
		r.Method(http.MethodGet, "/users/{userID}", s.wrap("/users/{id}", s.getUser))
		r.Method(http.MethodGet, "/users/{userID}/settings", s.wrap("/users/{id}/settings", s.getSettings))
		r.Method(http.MethodPut, "/users/{userID}/settings", s.wrap("/users/{id}/settings", s.updateSettings))
	})
	return r
}

// wrap 按路由模板记录请求指标
func (s *Server) wrap(route string, h http.HandlerFunc) http.Handler {
	if s.deps.Metrics == nil {
		return h
	}
	return s.deps.Metrics.WrapHandler(route, h)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
