package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/services"
	"studybuddy-backend/pkg/httputil"
)

// ChatHandlers handles HTTP requests related to account chats.
type ChatHandlers struct {
	chatService *services.ChatService
}

// NewChatHandlers creates a new ChatHandlers instance.
func NewChatHandlers(chatService *services.ChatService) *ChatHandlers {
	return &ChatHandlers{
		chatService: chatService,
	}
}

// HandleCreateChat handles POST /v1/chats.
func (h *ChatHandlers) HandleCreateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	chat, err := h.chatService.CreateChat(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, true)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, models.NewChatSessionResponse(chat))
}

// HandleListChats handles GET /v1/chats.
func (h *ChatHandlers) HandleListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	chats, err := h.chatService.ListRecentChats(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, true)
		return
	}
	resp := models.ListChatSessionsResponse{Chats: make([]models.ChatSessionResponse, 0, len(chats))}
	for i := range chats {
		resp.Chats = append(resp.Chats, models.NewChatSessionResponse(&chats[i]))
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetActiveChat handles GET /v1/chats/active.
func (h *ChatHandlers) HandleGetActiveChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	chat, err := h.chatService.ActiveChat(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, true)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.NewChatSessionResponse(chat))
}

// HandleGetChatByID handles GET /v1/chats/{chatID}.
func (h *ChatHandlers) HandleGetChatByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	chatID, ok := chatIDFromRequest(w, r)
	if !ok {
		return
	}

	chat, err := h.chatService.GetChat(r.Context(), userID, chatID)
	if err != nil {
		respondServiceError(w, err, true)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.NewChatSessionResponse(chat))
}

// HandleOverwriteHistory handles PUT /v1/chats/{chatID}.
func (h *ChatHandlers) HandleOverwriteHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	chatID, ok := chatIDFromRequest(w, r)
	if !ok {
		return
	}

	var req models.OverwriteHistoryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	chat, err := h.chatService.OverwriteHistory(r.Context(), userID, chatID, req.History)
	if err != nil {
		respondServiceError(w, err, true)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.NewChatSessionResponse(chat))
}

// HandleSendMessage handles POST /v1/chats/{chatID}/messages. When the model call fails
// after the user's message was accepted, the chat is returned next to the error.
func (h *ChatHandlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}
	chatID, ok := chatIDFromRequest(w, r)
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	chat, reply, err := h.chatService.SendMessage(r.Context(), userID, chatID, req.Content, req.Attachment)
	if err != nil {
		if chat == nil {
			respondServiceError(w, err, true)
			return
		}
		zap.S().Infof("[ChatHandlers] HandleSendMessage: turn in chat %s failed: %v", chatID, err)
		status, body := errorResponse(err, true)
		httputil.RespondJSON(w, status, models.SendChatMessageResponse{
			Chat:  models.NewChatSessionResponse(chat),
			Error: &body,
		})
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.SendChatMessageResponse{
		Chat:  models.NewChatSessionResponse(chat),
		Reply: reply,
	})
}
