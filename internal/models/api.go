package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Request Structs ---

// SignupRequest defines the expected body for the signup endpoint.
type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SaveCredentialRequest carries a per-session API key supplied by the end user.
type SaveCredentialRequest struct {
	APIKey string `json:"api_key"`
}

// GenerateRequest is the stateless round trip used by the ephemeral strategy:
// the client owns the conversation and sends it in full.
type GenerateRequest struct {
	History    []Message   `json:"history"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// SendMessageRequest adds one user turn to a server-held conversation.
type SendMessageRequest struct {
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// OverwriteHistoryRequest replaces the stored history of a chat session.
type OverwriteHistoryRequest struct {
	History []Message `json:"history"`
}

// --- Response Structs ---

// UserResponse defines the user information returned by the API.
// Avoid returning sensitive info like HashedPassword.
type UserResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// AuthResponse defines the response body for successful authentication.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// ErrorResponse defines the standard structure for API errors.
// Kind is one of "configuration", "authentication", "rate_limited", "upstream",
// "permission", "validation", "not_found", "busy" or "internal".
type ErrorResponse struct {
	Error       string `json:"error"`
	Kind        string `json:"kind,omitempty"`
	IsAuthError bool   `json:"is_auth_error"`
}

// SessionModeResponse tells a client which session strategy this deployment runs.
type SessionModeResponse struct {
	Mode     string `json:"mode"`
	Greeting string `json:"greeting"`
}

// CredentialStatusResponse reports whether the caller's session holds an API key.
type CredentialStatusResponse struct {
	HasKey bool `json:"has_key"`
}

// GenerateResponse carries the model's reply.
type GenerateResponse struct {
	Response string `json:"response"`
}

// ConversationResponse returns a conversation after a turn. On failure Error is set
// and Messages still contains the user's last message.
type ConversationResponse struct {
	Messages []Message      `json:"messages"`
	Error    *ErrorResponse `json:"error,omitempty"`
}

// ChatSessionResponse defines the standard representation of a chat session.
type ChatSessionResponse struct {
	ID        uuid.UUID `json:"id"`
	History   []Message `json:"history"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListChatSessionsResponse lists the most recently updated chat sessions, newest first.
type ListChatSessionsResponse struct {
	Chats []ChatSessionResponse `json:"chats"`
}

// SendChatMessageResponse is returned after a turn on an account-backed chat.
type SendChatMessageResponse struct {
	Chat  ChatSessionResponse `json:"chat"`
	Reply string              `json:"reply,omitempty"`
	Error *ErrorResponse      `json:"error,omitempty"`
}

// StreamEvent is one frame on the chat session websocket.
type StreamEvent struct {
	Type     string                `json:"type"` // "sessions" or "permission_error"
	Sessions []ChatSessionResponse `json:"sessions,omitempty"`
	Message  string                `json:"message,omitempty"`
}

// NewChatSessionResponse maps a stored session to its API representation.
func NewChatSessionResponse(s *ChatSession) ChatSessionResponse {
	history := s.History
	if history == nil {
		history = []Message{}
	}
	return ChatSessionResponse{
		ID:        s.ID,
		History:   history,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
