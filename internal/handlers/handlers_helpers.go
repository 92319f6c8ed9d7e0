package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studybuddy-backend/internal/auth"
	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/services"
	"studybuddy-backend/internal/store"
	"studybuddy-backend/pkg/httputil"
)

// Messages shown to end users. They never contain the provider's raw text for
// credential problems, which the user cannot act on.
const (
	msgNotConfigured   = "The study buddy is not configured yet. Please contact the administrator."
	msgServerKeyFailed = "The study buddy's model credential was rejected. Please contact the administrator."
	msgUserKeyRejected = "Your API key was rejected. Please enter a valid key."
	msgNoUserKey       = "Please enter your API key to start."
	msgRateLimited     = "The model is receiving too many requests right now. Please wait a moment and try again."
	msgTimeout         = "The model took too long to answer. Please try again."
	msgBusy            = "Still working on the previous message."
	msgInternal        = "Something went wrong on our side."
)

// errorResponse maps an error from the services, stores or model adapter onto a status
// code and body. serverKey is true when the model call used the deployment's own
// credential rather than one the caller supplied.
func errorResponse(err error, serverKey bool) (int, models.ErrorResponse) {
	var upstream *llm.UpstreamError
	switch {
	case errors.Is(err, config.ErrConfiguration), errors.Is(err, llm.ErrConfiguration):
		return http.StatusServiceUnavailable, models.ErrorResponse{Error: msgNotConfigured, Kind: "configuration"}
	case errors.Is(err, llm.ErrAuthentication) && serverKey:
		return http.StatusBadGateway, models.ErrorResponse{Error: msgServerKeyFailed, Kind: "configuration"}
	case errors.Is(err, llm.ErrAuthentication):
		return http.StatusUnauthorized, models.ErrorResponse{Error: msgUserKeyRejected, Kind: "authentication", IsAuthError: true}
	case errors.Is(err, services.ErrCredentialNotFound):
		return http.StatusUnauthorized, models.ErrorResponse{Error: msgNoUserKey, Kind: "authentication", IsAuthError: true}
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests, models.ErrorResponse{Error: msgRateLimited, Kind: "rate_limited"}
	case errors.As(err, &upstream):
		return http.StatusBadGateway, models.ErrorResponse{Error: upstream.Message, Kind: "upstream"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, models.ErrorResponse{Error: msgTimeout, Kind: "upstream"}
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrCredentialValidation),
		errors.Is(err, llm.ErrInvalidAttachment):
		return http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Kind: "validation"}
	case errors.Is(err, services.ErrChatNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, models.ErrorResponse{Error: "Chat not found", Kind: "not_found"}
	case errors.Is(err, services.ErrChatBusy):
		return http.StatusConflict, models.ErrorResponse{Error: msgBusy, Kind: "busy"}
	case errors.Is(err, store.ErrPermissionDenied):
		return http.StatusForbidden, models.ErrorResponse{Error: "You do not have access to this chat", Kind: "permission"}
	}
	return http.StatusInternalServerError, models.ErrorResponse{Error: msgInternal, Kind: "internal"}
}

func respondServiceError(w http.ResponseWriter, err error, serverKey bool) {
	status, body := errorResponse(err, serverKey)
	httputil.RespondErrorBody(w, status, body)
}

// userIDFromRequest returns the authenticated user's id or writes a 401.
func userIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

// chatIDFromRequest parses the {chatID} URL parameter or writes a 400.
func chatIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid chat ID")
		return uuid.Nil, false
	}
	return chatID, true
}
