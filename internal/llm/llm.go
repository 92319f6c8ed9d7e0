// Package llm calls the hosted language model that plays the tutor.
package llm

import (
	"context"

	"studybuddy-backend/internal/models"
)

// Request is everything one model call needs. APIKey is request-scoped: when set it is
// used for this call only, otherwise the generator falls back to the server credential.
type Request struct {
	SystemInstruction string
	History           []models.Message // prior turns; the last one is the newest user turn
	Attachment        *models.Attachment
	APIKey            string
}

// Generator produces the tutor's reply for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
