package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"studybuddy-backend/internal/models"
)

var (
	// ErrNotFound is returned when a specific record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrPermissionDenied is returned when the backend refuses the operation for this caller.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrDuplicate is returned when a unique field (username) is already taken.
	ErrDuplicate = errors.New("record already exists")
)

// UserStore persists accounts.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// ChatStore persists the chat sessions of each account. Every call is scoped to the
// owning user; a chat owned by someone else is reported as ErrNotFound.
type ChatStore interface {
	// CreateChatSession fills in missing ID and timestamps and inserts the session.
	CreateChatSession(ctx context.Context, chat *models.ChatSession) error
	GetChatSession(ctx context.Context, userID, chatID uuid.UUID) (*models.ChatSession, error)
	// UpdateChatHistory overwrites the history and bumps the update time.
	UpdateChatHistory(ctx context.Context, userID, chatID uuid.UUID, history []models.Message) error
	// ListRecentChatSessions returns at most limit sessions, most recently updated first.
	ListRecentChatSessions(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatSession, error)
	// WatchChatSessions calls fn with the ListRecentChatSessions result once immediately and
	// again after every change to the user's sessions. It blocks until ctx is done, then
	// returns nil; any other return is a failure of the underlying listener.
	WatchChatSessions(ctx context.Context, userID uuid.UUID, limit int, fn func([]models.ChatSession)) error
}

// Store is everything the account session mode needs.
type Store interface {
	UserStore
	ChatStore
}

// LocalHistoryStore keeps one conversation per display name.
type LocalHistoryStore interface {
	// LoadHistory returns ErrNotFound when name has no stored conversation.
	LoadHistory(ctx context.Context, name string) ([]models.Message, error)
	SaveHistory(ctx context.Context, name string, history []models.Message) error
	DeleteHistory(ctx context.Context, name string) error
}

// StripPayloads returns a copy of history whose attachments carry metadata only.
// Stores call it before writing so file bytes never reach persistent storage.
func StripPayloads(history []models.Message) []models.Message {
	out := models.CloneMessages(history)
	for i := range out {
		out[i].Attachment = out[i].Attachment.Stored()
	}
	if out == nil {
		out = []models.Message{}
	}
	return out
}
