// Package tutor runs one round trip of the study buddy conversation.
package tutor

import (
	"context"
	"errors"
	"strings"
	"time"

	"studybuddy-backend/internal/history"
	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/models"
)

// ErrEmptyTurn is returned for a turn with neither text nor an attachment.
var ErrEmptyTurn = errors.New("message must have text or an attachment")

// HasContent reports whether a user turn carries text or an attachment with data.
func HasContent(text string, attachment *models.Attachment) bool {
	return strings.TrimSpace(text) != "" || (attachment != nil && attachment.DataURI != "")
}

// Tutor pairs a Generator with the persona instruction.
type Tutor struct {
	gen         llm.Generator
	instruction string
}

// New returns a Tutor. An empty instruction means llm.TutorInstruction.
func New(gen llm.Generator, instruction string) *Tutor {
	if instruction == "" {
		instruction = llm.TutorInstruction
	}
	return &Tutor{gen: gen, instruction: instruction}
}

// Reply asks the model to answer conv, whose last message is the newest user turn.
// The greeting is filtered out before the call.
func (t *Tutor) Reply(ctx context.Context, conv []models.Message, attachment *models.Attachment, apiKey string) (string, error) {
	return t.gen.Generate(ctx, llm.Request{
		SystemInstruction: t.instruction,
		History:           history.ForModel(conv),
		Attachment:        attachment,
		APIKey:            apiKey,
	})
}

// Turn appends the user's message to conv, asks for a reply and appends it.
// On failure the returned conversation still holds the user message, so the caller can
// show and persist it; the error is the classified model error.
func (t *Tutor) Turn(ctx context.Context, conv []models.Message, text string, attachment *models.Attachment, apiKey string) ([]models.Message, error) {
	if !HasContent(text, attachment) {
		return conv, ErrEmptyTurn
	}
	text = strings.TrimSpace(text)

	out := models.CloneMessages(conv)
	out = append(out, models.Message{
		Role:       models.RoleUser,
		Content:    text,
		Attachment: attachment.Stored(),
		CreatedAt:  time.Now().UTC(),
	})

	reply, err := t.Reply(ctx, out, attachment, apiKey)
	if err != nil {
		return out, err
	}
	return append(out, models.Message{
		Role:      models.RoleAssistant,
		Content:   reply,
		CreatedAt: time.Now().UTC(),
	}), nil
}
