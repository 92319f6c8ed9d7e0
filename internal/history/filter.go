// Package history turns the conversation a user sees into the dialogue a model sees.
package history

import (
	"strings"
	"time"

	"studybuddy-backend/internal/models"
)

// DefaultGreeting opens every new conversation.
const DefaultGreeting = "What do you want to learn?"

// GreetingPrefixes are the greeting texts the app has shipped with. Conversations stored
// before the Seed flag existed are recognised by these.
var GreetingPrefixes = []string{
	DefaultGreeting,
	"Hello! I'm Axon",
	"Hi! I'm your AI Study Buddy",
}

// IsGreeting reports whether m is the display-only greeting.
func IsGreeting(m models.Message) bool {
	if m.Role != models.RoleAssistant {
		return false
	}
	if m.Seed {
		return true
	}
	content := strings.TrimSpace(m.Content)
	for _, prefix := range GreetingPrefixes {
		if strings.HasPrefix(content, prefix) {
			return true
		}
	}
	return false
}

// ForModel returns the part of conv that is real dialogue: conv without the greeting
// that opens it, conv unchanged otherwise. Greetings stacked at the start (a seed
// followed by a stored legacy greeting) are all dropped, so ForModel(ForModel(c))
// equals ForModel(c). The result never shares storage with conv.
func ForModel(conv []models.Message) []models.Message {
	start := 0
	for start < len(conv) && IsGreeting(conv[start]) {
		start++
	}
	if start == len(conv) {
		return []models.Message{}
	}
	return models.CloneMessages(conv[start:])
}

// NewConversation starts a conversation with a single seed greeting.
func NewConversation(greeting string) []models.Message {
	if strings.TrimSpace(greeting) == "" {
		greeting = DefaultGreeting
	}
	return []models.Message{{
		Role:      models.RoleAssistant,
		Content:   greeting,
		Seed:      true,
		CreatedAt: time.Now().UTC(),
	}}
}
