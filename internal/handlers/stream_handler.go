package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studybuddy-backend/internal/events"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/services"
)

const (
	streamWriteWait    = 10 * time.Second
	streamPingInterval = 30 * time.Second
	streamBuffer       = 16
)

const msgPermissionDenied = "Your chat could not be saved: the database refused access for this account."

// StreamHandler pushes the caller's recent chat sessions over a websocket whenever they
// change, plus a notice when a write for this user was refused.
type StreamHandler struct {
	chatService *services.ChatService
	upgrader    websocket.Upgrader
}

func NewStreamHandler(chatService *services.ChatService, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		chatService: chatService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		zap.S().Warnf("[StreamHandler] rejected websocket origin %q", origin)
		return false
	}
}

func sessionsEvent(list []models.ChatSession) models.StreamEvent {
	ev := models.StreamEvent{Type: "sessions", Sessions: make([]models.ChatSessionResponse, 0, len(list))}
	for i := range list {
		ev.Sessions = append(ev.Sessions, models.NewChatSessionResponse(&list[i]))
	}
	return ev
}

// HandleStream handles GET /v1/chats/stream.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		zap.S().Infof("[StreamHandler] HandleStream: upgrade failed for user %s: %v", userID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan models.StreamEvent, streamBuffer)

	// Publish runs on the writer's goroutine, so never block it.
	unsubscribe := h.chatService.Events().Subscribe(func(pe *events.PermissionError) {
		if pe.UserID != userID {
			return
		}
		select {
		case out <- models.StreamEvent{Type: "permission_error", Message: msgPermissionDenied}:
		default:
			zap.S().Warnf("[StreamHandler] dropped permission notice for user %s", userID)
		}
	})
	defer unsubscribe()

	// The client never sends anything we need; reading surfaces its close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- h.chatService.WatchChats(ctx, userID, func(list []models.ChatSession) {
			select {
			case out <- sessionsEvent(list):
			case <-ctx.Done():
			}
		})
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	write := func(ev models.StreamEvent) bool {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			zap.S().Infof("[StreamHandler] HandleStream: write to user %s failed: %v", userID, err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
			return
		case ev := <-out:
			if !write(ev) {
				return
			}
		case err := <-watchDone:
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				zap.S().Errorf("ERROR [StreamHandler] HandleStream: watch for user %s ended: %v", userID, err)
			}
			for {
				select {
				case ev := <-out:
					if !write(ev) {
						return
					}
				default:
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session feed ended"), time.Now().Add(streamWriteWait))
					return
				}
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
