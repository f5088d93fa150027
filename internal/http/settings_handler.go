package httpapi

import (
	"errors"
	"net/http"

	"posture-monitor/internal/models"
)

// settingsUpdate 部分更新，未给出的字段保持原值
type settingsUpdate struct {
	BlurScreenshots       *bool `json:"blur_screenshots"`
	EvidenceLockerEnabled *bool `json:"enabled_evidence_locker"`
	ReportFrequency       *int  `json:"report_frequency"`
}

// loadSettings 用户不存在返回 ErrNotFound；未保存过设置时返回默认值
func (s *Server) loadSettings(r *http.Request, userID int64) (*models.UserSettings, error) {
	ctx := r.Context()
	if _, err := s.deps.Repos.Users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	settings, err := s.deps.Repos.Settings.GetUserSettings(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		def := s.deps.DefaultSettings
		def.UserID = userID
		return &def, nil
	}
	return settings, err
}

// getSettings GET /api/v1/users/{userID}/settings
func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := s.loadSettings(r, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		s.internalError(w, "GetUserSettings failed", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// updateSettings PUT /api/v1/users/{userID}/settings
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req settingsUpdate
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReportFrequency != nil && *req.ReportFrequency < 0 {
		writeError(w, http.StatusBadRequest, "report_frequency must be non-negative")
		return
	}

	settings, err := s.loadSettings(r, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		s.internalError(w, "GetUserSettings failed", err)
		return
	}

	if req.BlurScreenshots != nil {
		settings.BlurScreenshots = *req.BlurScreenshots
	}
	if req.EvidenceLockerEnabled != nil {
		settings.EvidenceLockerEnabled = *req.EvidenceLockerEnabled
	}
	if req.ReportFrequency != nil {
		settings.ReportFrequency = *req.ReportFrequency
	}

	if err := s.deps.Repos.Settings.UpsertUserSettings(r.Context(), settings); err != nil {
		s.internalError(w, "UpsertUserSettings failed", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
