package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"studybuddy-backend/internal/models"
)

// OpenAIGenerator talks to any OpenAI-compatible chat endpoint (OpenAI, Ollama, vLLM, ...)
// through langchaingo.
type OpenAIGenerator struct {
	apiKey  string
	model   string
	baseURL string
	shared  llms.Model
}

// NewOpenAIGenerator creates a generator. With a server apiKey the client is built once;
// without one every request must carry its own key.
func NewOpenAIGenerator(apiKey, model, baseURL string) (*OpenAIGenerator, error) {
	g := &OpenAIGenerator{
		apiKey:  strings.TrimSpace(apiKey),
		model:   model,
		baseURL: baseURL,
	}
	if g.apiKey != "" {
		m, err := g.newModel(g.apiKey)
		if err != nil {
			return nil, err
		}
		g.shared = m
	}
	return g, nil
}

func (g *OpenAIGenerator) newModel(token string) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(token)}
	if g.model != "" {
		opts = append(opts, openai.WithModel(g.model))
	}
	if g.baseURL != "" {
		opts = append(opts, openai.WithBaseURL(g.baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return m, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return "", err
	}

	model := g.shared
	if key := strings.TrimSpace(req.APIKey); key != "" {
		if model, err = g.newModel(key); err != nil {
			return "", err
		}
	}
	if model == nil {
		return "", fmt.Errorf("%w: no API key for this session", ErrAuthentication)
	}

	msgs := make([]llms.MessageContent, 0, len(prompt.Context)+2)
	if prompt.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, prompt.System))
	}
	for _, t := range prompt.Context {
		msgs = append(msgs, llms.TextParts(openAIRole(t.Role), t.Text))
	}
	last := llms.TextParts(llms.ChatMessageTypeHuman, prompt.Text)
	if prompt.InlineData != nil {
		last.Parts = append(last.Parts, llms.BinaryPart(prompt.InlineData.MIMEType, prompt.InlineData.Data))
	}
	msgs = append(msgs, last)

	resp, err := model.GenerateContent(ctx, msgs)
	if err != nil {
		classified := Classify(err)
		zap.S().Warnf("[OpenAI] Generate: model=%s failed: %v", g.model, classified)
		return "", classified
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", &UpstreamError{Message: "model returned an empty response"}
	}
	return resp.Choices[0].Content, nil
}

func openAIRole(r models.Role) llms.ChatMessageType {
	if r == models.RoleAssistant {
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}
