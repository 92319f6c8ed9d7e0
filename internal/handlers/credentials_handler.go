package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"studybuddy-backend/internal/llm"
	api_models "studybuddy-backend/internal/models"
	"studybuddy-backend/internal/services"
	"studybuddy-backend/pkg/httputil"
)

// SessionCookieName carries the opaque id of the caller's stored API key.
const SessionCookieName = "sb_session"

// CredentialsHandler serves the ephemeral mode: the caller brings their own API key,
// kept server side for the browser session only, and sends the whole conversation
// with every request.
type CredentialsHandler struct {
	credService  services.CredentialsService
	cookieTTL    time.Duration
	secureCookie bool
}

func NewCredentialsHandler(credSvc services.CredentialsService, cookieTTL time.Duration, secureCookie bool) *CredentialsHandler {
	return &CredentialsHandler{
		credService:  credSvc,
		cookieTTL:    cookieTTL,
		secureCookie: secureCookie,
	}
}

func (h *CredentialsHandler) sessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *CredentialsHandler) setSessionCookie(w http.ResponseWriter, id string) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if h.cookieTTL > 0 {
		c.MaxAge = int(h.cookieTTL / time.Second)
	}
	http.SetCookie(w, c)
}

func (h *CredentialsHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// HandleSaveCredential handles POST /v1/credential.
func (h *CredentialsHandler) HandleSaveCredential(w http.ResponseWriter, r *http.Request) {
	var req api_models.SaveCredentialRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	id, err := h.credService.SaveKey(r.Context(), h.sessionID(r), req.APIKey)
	if err != nil {
		respondServiceError(w, err, false)
		return
	}
	h.setSessionCookie(w, id)
	httputil.RespondJSON(w, http.StatusOK, api_models.CredentialStatusResponse{HasKey: true})
}

// HandleGetCredential handles GET /v1/credential.
func (h *CredentialsHandler) HandleGetCredential(w http.ResponseWriter, r *http.Request) {
	has := h.credService.HasKey(r.Context(), h.sessionID(r))
	if !has {
		h.clearSessionCookie(w)
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.CredentialStatusResponse{HasKey: has})
}

// HandleDeleteCredential handles DELETE /v1/credential.
func (h *CredentialsHandler) HandleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	h.credService.ClearKey(r.Context(), h.sessionID(r))
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleGenerate handles POST /v1/generate.
func (h *CredentialsHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req api_models.GenerateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	reply, err := h.credService.Generate(r.Context(), h.sessionID(r), req.History, req.Attachment)
	if err != nil {
		if errors.Is(err, llm.ErrAuthentication) || errors.Is(err, services.ErrCredentialNotFound) {
			h.clearSessionCookie(w)
		}
		zap.S().Infof("[CredentialsHandler] HandleGenerate: %v", err)
		respondServiceError(w, err, false)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.GenerateResponse{Response: reply})
}
