package handlers

import (
	"net/http"

	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/history"
	api_models "studybuddy-backend/internal/models"
	"studybuddy-backend/pkg/httputil"
)

// SessionHandler tells clients how this deployment binds conversations to credentials.
type SessionHandler struct {
	mode     config.SessionMode
	greeting string
}

func NewSessionHandler(mode config.SessionMode, greeting string) *SessionHandler {
	if greeting == "" {
		greeting = history.DefaultGreeting
	}
	return &SessionHandler{mode: mode, greeting: greeting}
}

// HandleSessionMode handles GET /v1/session-mode.
func (h *SessionHandler) HandleSessionMode(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, api_models.SessionModeResponse{
		Mode:     string(h.mode),
		Greeting: h.greeting,
	})
}

// HandleHealth handles GET /health.
func (h *SessionHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
