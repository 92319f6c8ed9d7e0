package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	api_models "studybuddy-backend/internal/models"
	"studybuddy-backend/internal/services"
	"studybuddy-backend/pkg/httputil"
)

// LocalHistoryService defines the interface expected from the local history service.
type LocalHistoryService interface {
	Conversation(ctx context.Context, name string) ([]api_models.Message, error)
	SendMessage(ctx context.Context, name, text string, att *api_models.Attachment) ([]api_models.Message, error)
	Reset(ctx context.Context, name string) ([]api_models.Message, error)
}

// LocalHandler serves the local mode, where a display name selects the conversation.
type LocalHandler struct {
	localService LocalHistoryService
}

func NewLocalHandler(svc LocalHistoryService) *LocalHandler {
	return &LocalHandler{localService: svc}
}

// HandleGetConversation handles GET /v1/local/{name}/messages.
func (h *LocalHandler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.localService.Conversation(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondServiceError(w, err, true)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.ConversationResponse{Messages: conv})
}

// HandleSendMessage handles POST /v1/local/{name}/messages. A failed model call still
// returns the conversation, with the user's message in it, next to the error.
func (h *LocalHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req api_models.SendMessageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	name := chi.URLParam(r, "name")
	conv, err := h.localService.SendMessage(r.Context(), name, req.Content, req.Attachment)
	if err != nil {
		if conv == nil || errors.Is(err, services.ErrValidation) {
			respondServiceError(w, err, true)
			return
		}
		zap.S().Infof("[LocalHandler] HandleSendMessage: turn for %q failed: %v", name, err)
		status, body := errorResponse(err, true)
		httputil.RespondJSON(w, status, api_models.ConversationResponse{Messages: conv, Error: &body})
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.ConversationResponse{Messages: conv})
}

// HandleReset handles DELETE /v1/local/{name}/messages.
func (h *LocalHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	conv, err := h.localService.Reset(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondServiceError(w, err, true)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.ConversationResponse{Messages: conv})
}
