package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"studybuddy-backend/internal/events"
	"studybuddy-backend/internal/history"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/store"
	"studybuddy-backend/internal/tutor"
)

var (
	ErrChatNotFound = errors.New("chat session not found")
	ErrChatBusy     = errors.New("a reply is already being generated for this chat")
)

// ChatService drives the account mode: persisted chat sessions, one model turn at a time
// per chat, and the live recent-sessions feed.
type ChatService struct {
	store    store.ChatStore
	tutor    *tutor.Tutor
	emitter  *events.Emitter
	greeting string
	limit    int
	busy     *inflight
}

func NewChatService(s store.ChatStore, t *tutor.Tutor, emitter *events.Emitter, greeting string, recentLimit int) *ChatService {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	if emitter == nil {
		emitter = events.NewEmitter()
	}
	return &ChatService{
		store:    s,
		tutor:    t,
		emitter:  emitter,
		greeting: greeting,
		limit:    recentLimit,
		busy:     newInflight(),
	}
}

func chatPath(userID, chatID uuid.UUID) string {
	return fmt.Sprintf("users/%s/chats/%s", userID, chatID)
}

// reportStoreError publishes permission failures on the emitter and logs everything else.
func (s *ChatService) reportStoreError(userID, chatID uuid.UUID, op string, err error) {
	if errors.Is(err, store.ErrPermissionDenied) {
		s.emitter.Publish(&events.PermissionError{
			UserID:    userID,
			Path:      chatPath(userID, chatID),
			Operation: op,
			Err:       err,
		})
		return
	}
	logger().Errorf("ERROR [ChatService] %s: %s: %v", op, chatPath(userID, chatID), err)
}

// CreateChat starts a new session holding only the greeting.
func (s *ChatService) CreateChat(ctx context.Context, userID uuid.UUID) (*models.ChatSession, error) {
	chat := &models.ChatSession{
		UserID:  userID,
		History: history.NewConversation(s.greeting),
	}
	if err := s.store.CreateChatSession(ctx, chat); err != nil {
		if errors.Is(err, store.ErrPermissionDenied) {
			s.reportStoreError(userID, chat.ID, "create", err)
		}
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	logger().Infof("[ChatService] CreateChat: created chat %s for user %s", chat.ID, userID)
	return chat, nil
}

// ListRecentChats returns the user's most recently updated sessions.
func (s *ChatService) ListRecentChats(ctx context.Context, userID uuid.UUID) ([]models.ChatSession, error) {
	chats, err := s.store.ListRecentChatSessions(ctx, userID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	return chats, nil
}

func (s *ChatService) GetChat(ctx context.Context, userID, chatID uuid.UUID) (*models.ChatSession, error) {
	chat, err := s.store.GetChatSession(ctx, userID, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return chat, nil
}

// ActiveChat is the session a signed-in user lands in: the most recent one, or a fresh
// seeded session when they have none.
func (s *ChatService) ActiveChat(ctx context.Context, userID uuid.UUID) (*models.ChatSession, error) {
	recent, err := s.store.ListRecentChatSessions(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to find active chat: %w", err)
	}
	if len(recent) > 0 {
		return &recent[0], nil
	}
	return s.CreateChat(ctx, userID)
}

// OverwriteHistory replaces a session's history wholesale.
func (s *ChatService) OverwriteHistory(ctx context.Context, userID, chatID uuid.UUID, msgs []models.Message) (*models.ChatSession, error) {
	for i, m := range msgs {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("%w: message %d has invalid role %q", ErrValidation, i, m.Role)
		}
	}
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateChatHistory(ctx, userID, chatID, msgs); err != nil {
		if errors.Is(err, store.ErrPermissionDenied) {
			s.reportStoreError(userID, chatID, "update", err)
		}
		return nil, fmt.Errorf("failed to overwrite chat history: %w", err)
	}
	return s.GetChat(ctx, userID, chatID)
}

// SendMessage runs one tutoring turn in the chat using the server's model key.
//
// The returned chat always reflects the conversation the user should see, including
// their message when the model call failed. A failed write is reported through the
// emitter or the log and does not fail the turn. The error, when non-nil, is the
// model error.
func (s *ChatService) SendMessage(ctx context.Context, userID, chatID uuid.UUID, text string, att *models.Attachment) (*models.ChatSession, string, error) {
	key := chatID.String()
	if !s.busy.acquire(key) {
		return nil, "", ErrChatBusy
	}
	defer s.busy.release(key)

	chat, err := s.GetChat(ctx, userID, chatID)
	if err != nil {
		return nil, "", err
	}

	conv, turnErr := s.tutor.Turn(ctx, chat.History, text, att, "")
	if errors.Is(turnErr, tutor.ErrEmptyTurn) {
		return nil, "", fmt.Errorf("%w: %v", ErrValidation, turnErr)
	}

	if err := s.store.UpdateChatHistory(ctx, userID, chatID, conv); err != nil {
		s.reportStoreError(userID, chatID, "update", err)
	}
	chat.History = store.StripPayloads(conv)

	if turnErr != nil {
		logger().Warnf("[ChatService] SendMessage: model call failed for chat %s: %v", chatID, turnErr)
		return chat, "", turnErr
	}
	reply := conv[len(conv)-1].Content
	return chat, reply, nil
}

// WatchChats streams the user's recent sessions to fn until ctx is done.
func (s *ChatService) WatchChats(ctx context.Context, userID uuid.UUID, fn func([]models.ChatSession)) error {
	err := s.store.WatchChatSessions(ctx, userID, s.limit, fn)
	if errors.Is(err, store.ErrPermissionDenied) {
		s.emitter.Publish(&events.PermissionError{
			UserID:    userID,
			Path:      fmt.Sprintf("users/%s/chats", userID),
			Operation: "list",
			Err:       err,
		})
	}
	return err
}

// Events is the emitter permission failures are published on.
func (s *ChatService) Events() *events.Emitter {
	return s.emitter
}
