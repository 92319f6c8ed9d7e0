package services

import (
	"context"
	"errors"
	"fmt"

	"studybuddy-backend/internal/credentials"
	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/tutor"
)

// Custom errors for Credentials service
var (
	ErrCredentialNotFound   = errors.New("no API key for this session")
	ErrCredentialValidation = errors.New("credential validation failed")
	ErrCredentialEncryption = errors.New("credential encryption failed")
)

// CredentialsService holds the API keys of ephemeral sessions and runs model calls
// with them. Nothing about the conversation is stored server side.
type CredentialsService interface {
	// SaveKey stores key for the session and returns the session id to use from now on.
	SaveKey(ctx context.Context, sessionID, key string) (string, error)
	HasKey(ctx context.Context, sessionID string) bool
	ClearKey(ctx context.Context, sessionID string)
	// Generate answers conv, whose last message is the newest user turn, with the
	// session's key. A rejected key is forgotten before the error is returned.
	Generate(ctx context.Context, sessionID string, conv []models.Message, att *models.Attachment) (string, error)
}

type credentialsService struct {
	vault *credentials.Vault
	tutor *tutor.Tutor
}

func NewCredentialsService(v *credentials.Vault, t *tutor.Tutor) CredentialsService {
	return &credentialsService{
		vault: v,
		tutor: t,
	}
}

func (s *credentialsService) SaveKey(ctx context.Context, sessionID, key string) (string, error) {
	id, err := s.vault.Replace(sessionID, key)
	if err != nil {
		switch {
		case errors.Is(err, credentials.ErrEmptyKey), errors.Is(err, credentials.ErrPlaceholder):
			return "", fmt.Errorf("%w: %v", ErrCredentialValidation, err)
		case errors.Is(err, credentials.ErrSealFailure):
			return "", ErrCredentialEncryption
		}
		return "", fmt.Errorf("failed to save API key: %w", err)
	}
	logger().Infof("[CredService] SaveKey: stored key for session %s (%d active)", id, s.vault.Len())
	return id, nil
}

func (s *credentialsService) HasKey(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	_, err := s.vault.Lookup(sessionID)
	return err == nil
}

func (s *credentialsService) ClearKey(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	s.vault.Delete(sessionID)
	logger().Infof("[CredService] ClearKey: cleared key for session %s", sessionID)
}

func (s *credentialsService) Generate(ctx context.Context, sessionID string, conv []models.Message, att *models.Attachment) (string, error) {
	if len(conv) == 0 || conv[len(conv)-1].Role != models.RoleUser {
		return "", fmt.Errorf("%w: history must end with a user message", ErrValidation)
	}
	for i, m := range conv {
		if !m.Role.Valid() {
			return "", fmt.Errorf("%w: message %d has invalid role %q", ErrValidation, i, m.Role)
		}
	}
	if !tutor.HasContent(conv[len(conv)-1].Content, att) {
		return "", fmt.Errorf("%w: message must have text or an attachment", ErrValidation)
	}
	if sessionID == "" {
		return "", ErrCredentialNotFound
	}
	key, err := s.vault.Lookup(sessionID)
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			logger().Errorf("ERROR [CredService] Generate: opening key for session %s: %v", sessionID, err)
			s.vault.Delete(sessionID)
		}
		return "", ErrCredentialNotFound
	}

	reply, err := s.tutor.Reply(ctx, conv, att, key)
	if err != nil {
		if errors.Is(err, llm.ErrAuthentication) {
			logger().Warnf("[CredService] Generate: key for session %s was rejected, clearing it", sessionID)
			s.vault.Delete(sessionID)
		}
		return "", err
	}
	return reply, nil
}
