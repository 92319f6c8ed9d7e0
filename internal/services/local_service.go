package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studybuddy-backend/internal/history"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/store"
	"studybuddy-backend/internal/tutor"
)

const maxLocalNameLength = 64

// LocalHistoryService keeps one conversation per display name in a local database.
// There are no accounts; the name is the only key.
type LocalHistoryService struct {
	store    store.LocalHistoryStore
	tutor    *tutor.Tutor
	greeting string
	busy     *inflight
}

func NewLocalHistoryService(s store.LocalHistoryStore, t *tutor.Tutor, greeting string) *LocalHistoryService {
	return &LocalHistoryService{
		store:    s,
		tutor:    t,
		greeting: greeting,
		busy:     newInflight(),
	}
}

func validateLocalName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if len(name) > maxLocalNameLength {
		return "", fmt.Errorf("%w: name must be at most %d characters", ErrValidation, maxLocalNameLength)
	}
	return name, nil
}

func (s *LocalHistoryService) load(ctx context.Context, name string) ([]models.Message, error) {
	conv, err := s.store.LoadHistory(ctx, name)
	if errors.Is(err, store.ErrNotFound) || (err == nil && len(conv) == 0) {
		return history.NewConversation(s.greeting), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %q: %w", name, err)
	}
	return conv, nil
}

// Conversation returns the stored conversation for name, or a fresh greeting.
func (s *LocalHistoryService) Conversation(ctx context.Context, name string) ([]models.Message, error) {
	name, err := validateLocalName(name)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, name)
}

// SendMessage runs one turn for name with the server's model key. The conversation is
// saved even when the model call fails so the user's message survives a restart.
func (s *LocalHistoryService) SendMessage(ctx context.Context, name, text string, att *models.Attachment) ([]models.Message, error) {
	name, err := validateLocalName(name)
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(name)
	if !s.busy.acquire(key) {
		return nil, ErrChatBusy
	}
	defer s.busy.release(key)

	conv, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}

	conv, turnErr := s.tutor.Turn(ctx, conv, text, att, "")
	if errors.Is(turnErr, tutor.ErrEmptyTurn) {
		return nil, fmt.Errorf("%w: %v", ErrValidation, turnErr)
	}

	if err := s.store.SaveHistory(ctx, name, conv); err != nil {
		logger().Errorf("ERROR [LocalHistoryService] SendMessage: saving history for %q: %v", name, err)
	}
	conv = store.StripPayloads(conv)
	if turnErr != nil {
		logger().Warnf("[LocalHistoryService] SendMessage: model call failed for %q: %v", name, turnErr)
	}
	return conv, turnErr
}

// Reset forgets the conversation for name and returns a fresh one.
func (s *LocalHistoryService) Reset(ctx context.Context, name string) ([]models.Message, error) {
	name, err := validateLocalName(name)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteHistory(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to reset history for %q: %w", name, err)
	}
	logger().Infof("[LocalHistoryService] Reset: cleared history for %q", name)
	return history.NewConversation(s.greeting), nil
}
