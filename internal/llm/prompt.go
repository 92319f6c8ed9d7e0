package llm

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"studybuddy-backend/internal/models"
)

// DefaultAttachmentPrompt replaces an empty user turn so a call never carries no text.
const DefaultAttachmentPrompt = "Please analyze the attached file."

// TutorInstruction is the persona every call runs under.
const TutorInstruction = `You are a personalized AI Tutor named Axon, the user's AI Study Buddy.
Your goal is to help the user learn about a topic of their choice using the Socratic method.
It is crucial that you remember the user's topic and the conversation history. Use the history to maintain context. For example, if a user says 'tell me more about it', you should know what 'it' is from previous messages.
- Your primary goal is to explain concepts clearly and concisely.
- To make the session interactive, start your response by asking **one** thought-provoking question related to the user's query to check their understanding.
- Immediately after the question, provide a comprehensive explanation of the topic. Don't wait for the user to answer the question.
- Adapt the difficulty: if the user shows strong understanding, go deeper; if they struggle, give hints and simplify.
- Keep your responses concise and focused.
- Maintain a friendly, patient, and encouraging tone throughout the session.
- Start the conversation by asking what the user wants to learn, unless they have already stated it.
- If the user provides an attachment (image, document), analyze it and incorporate it into your response.`

// Turn is one prior message in provider-neutral form.
type Turn struct {
	Role models.Role
	Text string
}

// InlineData is a decoded attachment.
type InlineData struct {
	MIMEType string
	Data     []byte
}

// Prompt is the provider-neutral shape of one call: context turns that start with a
// user turn, then the newest user turn as text plus optional inline data.
type Prompt struct {
	System     string
	Context    []Turn
	Text       string
	InlineData *InlineData
}

// BuildPrompt turns a request into a Prompt.
//
// The last history message is the turn to answer when it is a user turn; everything
// before it is context. Leading assistant turns are dropped from the context because
// providers require the dialogue to open with a user turn.
func BuildPrompt(req Request) (Prompt, error) {
	p := Prompt{System: req.SystemInstruction}

	hist := req.History
	if n := len(hist); n > 0 && hist[n-1].Role == models.RoleUser {
		p.Text = strings.TrimSpace(hist[n-1].Content)
		hist = hist[:n-1]
	}

	start := 0
	for start < len(hist) && hist[start].Role != models.RoleUser {
		start++
	}
	for _, m := range hist[start:] {
		role := m.Role
		if !role.Valid() {
			role = models.RoleUser
		}
		p.Context = append(p.Context, Turn{Role: role, Text: m.Content})
	}

	if req.Attachment != nil && req.Attachment.DataURI != "" {
		data, err := DecodeDataURI(req.Attachment.DataURI)
		if err != nil {
			return Prompt{}, err
		}
		if req.Attachment.Type != "" {
			data.MIMEType = req.Attachment.Type
		}
		p.InlineData = data
	}

	if p.Text == "" {
		p.Text = DefaultAttachmentPrompt
	}
	return p, nil
}

// DecodeDataURI decodes an RFC 2397 data URI ("data:<mime>[;base64],<payload>").
func DecodeDataURI(uri string) (*InlineData, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data URI", ErrInvalidAttachment)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: data URI has no payload separator", ErrInvalidAttachment)
	}

	params := strings.Split(header, ";")
	mimeType := strings.TrimSpace(params[0])
	if mimeType == "" {
		mimeType = "text/plain"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidAttachment, err)
			}
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAttachment, err)
		}
		data = []byte(unescaped)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidAttachment)
	}
	return &InlineData{MIMEType: mimeType, Data: data}, nil
}

// EncodeDataURI is the inverse of DecodeDataURI, always base64.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
