package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"posture-monitor/internal/models"
	"posture-monitor/internal/report"
)

const maxHistoryLimit = 1000

type submitFrameRequest struct {
	SessionID int64  `json:"session_id"`
	Frame     string `json:"frame"`
}

type submitFrameResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
}

type currentPostureResponse struct {
	SessionID                     int64                `json:"session_id"`
	CurrentStatus                 models.PostureStatus `json:"current_status"`
	LastUpdated                   time.Time            `json:"last_updated"`
	DurationInCurrentStateSeconds int                  `json:"duration_in_current_state_seconds"`
	NeckAngle                     *float64             `json:"neck_angle"`
	TorsoAngle                    *float64             `json:"torso_angle"`
	DistanceScore                 *float64             `json:"distance_score"`
	Confidence                    *float64             `json:"confidence"`
}

// decodeFrame 支持纯 base64 和 data URL（data:image/jpeg;base64,...）
func decodeFrame(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, errors.New("malformed data URL")
		}
		s = s[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("frame is not valid base64: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("frame is empty")
	}
	return data, nil
}

// submitFrame POST /api/v1/posture/frame
// 只做会话校验和入队，分类与告警在 worker 中异步完成
func (s *Server) submitFrame(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitFrameRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID <= 0 || req.Frame == "" {
		writeError(w, http.StatusBadRequest, "session_id and frame are required")
		return
	}

	session, err := s.deps.Repos.Sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			s.deps.Metrics.FrameRejected()
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.internalError(w, "GetSession failed", err)
		return
	}
	if !session.IsActive() {
		s.deps.Metrics.FrameRejected()
		writeError(w, http.StatusBadRequest, "Session is not active")
		return
	}

	data, err := decodeFrame(req.Frame)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.deps.Frames.Enqueue(ctx, models.Frame{
		SessionID:  req.SessionID,
		Data:       data,
		ReceivedAt: s.deps.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("Failed to enqueue frame",
			zap.Int64("session_id", req.SessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, "frame queue unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, submitFrameResponse{Status: "queued", MessageID: id})
}

// currentPosture GET /api/v1/posture/session/{id}/current
func (s *Server) currentPosture(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	latest, err := s.deps.Repos.Logs.LatestLog(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]string{"message": "No posture data available for this session"})
			return
		}
		s.internalError(w, "LatestLog failed", err)
		return
	}

	elapsed := s.deps.Now().Sub(latest.Timestamp)
	if elapsed < 0 {
		elapsed = 0
	}
	writeJSON(w, http.StatusOK, currentPostureResponse{
		SessionID:                     id,
		CurrentStatus:                 latest.Status,
		LastUpdated:                   latest.Timestamp,
		DurationInCurrentStateSeconds: int(elapsed.Seconds()),
		NeckAngle:                     latest.NeckAngle,
		TorsoAngle:                    latest.TorsoAngle,
		DistanceScore:                 latest.DistanceScore,
		Confidence:                    latest.Confidence,
	})
}

// postureHistory GET /api/v1/posture/session/{id}/history?skip=&limit=
func (s *Server) postureHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	skip, err := parseIntQuery(r, "skip", 0)
	if err != nil || skip < 0 {
		writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	limit, err := parseIntQuery(r, "limit", 100)
	if err != nil || limit <= 0 || limit > maxHistoryLimit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
		return
	}

	logs, err := s.deps.Repos.Logs.History(r.Context(), id, skip, limit)
	if err != nil {
		s.internalError(w, "History failed", err)
		return
	}
	if logs == nil {
		logs = []models.PostureLogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// sessionStats GET /api/v1/posture/session/{id}/stats
func (s *Server) sessionStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, _, err := s.deps.Stats.SessionStats(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.internalError(w, "SessionStats failed", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// sessionReport GET /api/v1/posture/session/{id}/report.xlsx
func (s *Server) sessionReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, entries, err := s.deps.Stats.SessionStats(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.internalError(w, "SessionStats failed", err)
		return
	}

	data, err := report.RenderSessionReport(stats, entries)
	if err != nil {
		s.internalError(w, "RenderSessionReport failed", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=session_%d_report.xlsx", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
