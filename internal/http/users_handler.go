package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"posture-monitor/internal/models"
	"posture-monitor/internal/repository"
)

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// listUsers GET /api/v1/users?skip=&limit=
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	skip, err := parseIntQuery(r, "skip", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseIntQuery(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, err := s.deps.Repos.Users.ListUsers(r.Context(), skip, limit)
	if err != nil {
		s.internalError(w, "ListUsers failed", err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// getUser GET /api/v1/users/{userID}
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.deps.Repos.Users.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		s.internalError(w, "GetUser failed", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// createUser POST /api/v1/users
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	user := &models.User{Email: req.Email, Name: strings.TrimSpace(req.Name)}
	if err := s.deps.Repos.Users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "Email already registered")
			return
		}
		s.internalError(w, "CreateUser failed", err)
		return
	}

	s.logger.Info("User created", zap.Int64("user_id", user.ID))
	writeJSON(w, http.StatusCreated, user)
}
