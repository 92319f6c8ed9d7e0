package models

import (
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Attachment references a user-supplied file.
// DataURI carries the file bytes on the way to the model only; it is never stored.
type Attachment struct {
	Name    string `json:"name" firestore:"name"`
	Type    string `json:"type" firestore:"type"`
	DataURI string `json:"dataUri,omitempty" firestore:"-"`
}

// Stored returns a copy of the attachment without its payload.
func (a *Attachment) Stored() *Attachment {
	if a == nil {
		return nil
	}
	return &Attachment{Name: a.Name, Type: a.Type}
}

// Message represents a single turn in a conversation.
// Seed marks the display-only greeting that opens every conversation.
type Message struct {
	Role       Role        `json:"role" firestore:"role"`
	Content    string      `json:"content" firestore:"content"`
	Attachment *Attachment `json:"attachment,omitempty" firestore:"attachment,omitempty"`
	Seed       bool        `json:"seed,omitempty" firestore:"seed,omitempty"`
	CreatedAt  time.Time   `json:"created_at,omitempty" firestore:"createdAt,omitempty"`
}

// CloneMessages returns a copy of msgs that does not share the backing array.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
