package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"studybuddy-backend/internal/models"
)

// GeminiGenerator calls the Gemini API through google.golang.org/genai.
//
// The server credential (if any) backs a shared client. A request that carries its own
// APIKey gets a client built for that call only, so two users never share a key.
type GeminiGenerator struct {
	model   string
	baseURL string

	mu     sync.Mutex
	shared *genai.Client
	apiKey string
}

// NewGeminiGenerator creates a generator. apiKey may be empty when every request carries
// its own key (ephemeral sessions). baseURL is optional and overrides the API endpoint.
func NewGeminiGenerator(apiKey, model, baseURL string) *GeminiGenerator {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiGenerator{
		model:   model,
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
	}
}

func (g *GeminiGenerator) newClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return client, nil
}

func (g *GeminiGenerator) client(ctx context.Context, reqKey string) (*genai.Client, error) {
	if key := strings.TrimSpace(reqKey); key != "" {
		return g.newClient(ctx, key)
	}
	if g.apiKey == "" {
		return nil, fmt.Errorf("%w: no API key for this session", ErrAuthentication)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shared == nil {
		c, err := g.newClient(ctx, g.apiKey)
		if err != nil {
			return nil, err
		}
		g.shared = c
	}
	return g.shared, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return "", err
	}

	client, err := g.client(ctx, req.APIKey)
	if err != nil {
		return "", err
	}

	contents := make([]*genai.Content, 0, len(prompt.Context)+1)
	for _, t := range prompt.Context {
		contents = append(contents, genai.NewContentFromText(t.Text, geminiRole(t.Role)))
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt.Text)}
	if prompt.InlineData != nil {
		parts = append(parts, genai.NewPartFromBytes(prompt.InlineData.Data, prompt.InlineData.MIMEType))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	var cfg *genai.GenerateContentConfig
	if prompt.System != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		}
	}

	res, err := client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		classified := Classify(err)
		zap.S().Warnf("[Gemini] Generate: model=%s turns=%d failed: %v", g.model, len(contents), classified)
		return "", classified
	}

	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return "", &UpstreamError{Message: "model returned an empty response"}
	}
	return text, nil
}

func geminiRole(r models.Role) genai.Role {
	if r == models.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}
