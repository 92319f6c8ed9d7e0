// Package chat holds the client-side conversation state machine: credential entry,
// idle and awaiting a reply.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"studybuddy-backend/internal/credentials"
	"studybuddy-backend/internal/history"
	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/tutor"
)

// State of a Shell.
type State int

const (
	StateCredentialEntry State = iota
	StateIdle
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateCredentialEntry:
		return "credential-entry"
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting-response"
	}
	return "unknown"
}

var (
	ErrBusy           = errors.New("a reply is already pending")
	ErrSignedOut      = errors.New("no credential; sign in first")
	ErrEmptyMessage   = errors.New("message must have text or an attachment")
	ErrEmptyAPIKey    = errors.New("API key must not be empty")
	ErrPlaceholderKey = errors.New("API key is a placeholder")
)

// Shell owns one conversation and the credential it runs under. At most one model
// call is outstanding at a time.
type Shell struct {
	tutor    *tutor.Tutor
	creds    CredentialStore
	greeting string

	mu    sync.Mutex
	state State
	conv  []models.Message
	// gen changes whenever conv is replaced; a reply for an older gen is discarded.
	gen uint64
}

// NewShell returns a shell. A credential already in creds signs the shell in.
func NewShell(t *tutor.Tutor, creds CredentialStore, greeting string) *Shell {
	s := &Shell{tutor: t, creds: creds, greeting: greeting, state: StateCredentialEntry}
	if key, ok := creds.Get(); ok && key != "" {
		s.state = StateIdle
		s.conv = history.NewConversation(greeting)
	}
	return s
}

// SignIn stores key and starts a fresh conversation.
func (s *Shell) SignIn(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyAPIKey
	}
	if credentials.IsPlaceholderKey(key) {
		return ErrPlaceholderKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAwaitingResponse {
		return ErrBusy
	}
	s.creds.Set(key)
	s.conv = history.NewConversation(s.greeting)
	s.state = StateIdle
	s.gen++
	return nil
}

// SignOut clears the credential and the conversation.
func (s *Shell) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signOutLocked()
}

func (s *Shell) signOutLocked() {
	s.creds.Clear()
	s.conv = nil
	s.state = StateCredentialEntry
	s.gen++
}

// Reset starts a new conversation under the same credential.
func (s *Shell) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCredentialEntry:
		return ErrSignedOut
	case StateAwaitingResponse:
		return ErrBusy
	}
	s.conv = history.NewConversation(s.greeting)
	s.gen++
	return nil
}

// Submit sends one user turn. The user message is appended before the model is called
// and stays in the conversation whatever the outcome. An authentication failure signs
// the shell out.
func (s *Shell) Submit(ctx context.Context, text string, attachment *models.Attachment) (string, error) {
	if !tutor.HasContent(text, attachment) {
		return "", ErrEmptyMessage
	}
	text = strings.TrimSpace(text)

	s.mu.Lock()
	switch s.state {
	case StateCredentialEntry:
		s.mu.Unlock()
		return "", ErrSignedOut
	case StateAwaitingResponse:
		s.mu.Unlock()
		return "", ErrBusy
	}
	key, _ := s.creds.Get()
	s.conv = append(s.conv, models.Message{
		Role:       models.RoleUser,
		Content:    text,
		Attachment: attachment.Stored(),
		CreatedAt:  time.Now().UTC(),
	})
	pending := models.CloneMessages(s.conv)
	s.state = StateAwaitingResponse
	gen := s.gen
	s.mu.Unlock()

	reply, err := s.tutor.Reply(ctx, pending, attachment, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// the conversation was replaced while the call was in flight
		if err != nil {
			return "", err
		}
		return "", ErrSignedOut
	}
	if err != nil {
		if errors.Is(err, llm.ErrAuthentication) {
			s.signOutLocked()
		} else {
			s.state = StateIdle
		}
		return "", err
	}
	s.conv = append(s.conv, models.Message{Role: models.RoleAssistant, Content: reply, CreatedAt: time.Now().UTC()})
	s.state = StateIdle
	return reply, nil
}

// Messages returns a copy of the conversation.
func (s *Shell) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneMessages(s.conv)
}

// State returns the current state.
func (s *Shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
