package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

type startSessionRequest struct {
	UserID int64 `json:"user_id"`
}

// startSession POST /api/v1/sessions/start
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startSessionRequest
	if err := readBodyJSON(r, &req); err != nil || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if _, err := s.deps.Repos.Users.GetUser(ctx, req.UserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		s.internalError(w, "GetUser failed", err)
		return
	}

	session, err := s.deps.Repos.Sessions.StartSession(ctx, req.UserID, s.deps.Now().UTC())
	if err != nil {
		if errors.Is(err, models.ErrActiveSessionExists) {
			detail := "User already has an active session"
			if active, aerr := s.deps.Repos.Sessions.GetActiveSession(ctx, req.UserID); aerr == nil {
				detail = fmt.Sprintf("User already has an active session (ID: %d)", active.ID)
			}
			writeError(w, http.StatusConflict, detail)
			return
		}
		s.internalError(w, "StartSession failed", err)
		return
	}

	s.logger.Info("Session started",
		zap.Int64("session_id", session.ID),
		zap.Int64("user_id", session.UserID),
	)
	writeJSON(w, http.StatusOK, session)
}

// stopSession POST /api/v1/sessions/{id}/stop
func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.deps.Repos.Sessions.StopSession(r.Context(), id, s.deps.Now().UTC())
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, models.ErrSessionNotActive):
		writeError(w, http.StatusBadRequest, "Session is not active")
		return
	case err != nil:
		s.internalError(w, "StopSession failed", err)
		return
	}

	s.logger.Info("Session stopped",
		zap.Int64("session_id", session.ID),
		zap.Intp("total_duration_seconds", session.TotalDurationSeconds),
	)
	writeJSON(w, http.StatusOK, session)
}

// getSession GET /api/v1/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.deps.Repos.Sessions.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.internalError(w, "GetSession failed", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// listUserSessions GET /api/v1/sessions/user/{userID}?skip=&limit=&status=
func (s *Server) listUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	skip, err := parseIntQuery(r, "skip", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseIntQuery(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := s.deps.Repos.Sessions.ListUserSessions(r.Context(), userID, r.URL.Query().Get("status"), skip, limit)
	if err != nil {
		s.internalError(w, "ListUserSessions failed", err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// activeSession GET /api/v1/sessions/user/{userID}/active；没有 active 会话时返回 null
func (s *Server) activeSession(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.deps.Repos.Sessions.GetActiveSession(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		s.internalError(w, "GetActiveSession failed", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
