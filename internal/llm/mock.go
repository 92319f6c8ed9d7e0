package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockGenerator returns canned replies. It records every prompt it was asked to answer.
// Err, when set, is returned instead of a reply.
type MockGenerator struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []Prompt
	keys    []string
}

// NewMockGenerator returns a mock that echoes the newest user turn.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt, err := BuildPrompt(req)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.keys = append(m.keys, req.APIKey)
	reply, failure := m.Reply, m.Err
	m.mu.Unlock()

	if failure != nil {
		return "", failure
	}
	if reply != "" {
		return reply, nil
	}
	if prompt.InlineData != nil {
		return fmt.Sprintf("[mock] %s (%d bytes of %s)", prompt.Text, len(prompt.InlineData.Data), prompt.InlineData.MIMEType), nil
	}
	return "[mock] " + prompt.Text, nil
}

// Prompts returns the prompts seen so far.
func (m *MockGenerator) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}

// LastPrompt returns the most recent prompt and whether there was one.
func (m *MockGenerator) LastPrompt() (Prompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return Prompt{}, false
	}
	return m.prompts[len(m.prompts)-1], true
}

// Keys returns the request-scoped API keys seen so far, in call order.
func (m *MockGenerator) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

// SetResult changes the reply and error returned by later calls.
func (m *MockGenerator) SetResult(reply string, err error) {
	m.mu.Lock()
	m.Reply, m.Err = reply, err
	m.mu.Unlock()
}
