package llm

import (
	"errors"
	"testing"

	"studybuddy-backend/internal/models"
)

func TestBuildPromptSplitsContextAndLatestTurn(t *testing.T) {
	req := Request{
		SystemInstruction: "sys",
		History: []models.Message{
			{Role: models.RoleUser, Content: "What is X?"},
			{Role: models.RoleAssistant, Content: "X is a letter."},
			{Role: models.RoleUser, Content: "tell me more about it"},
		},
	}
	p, err := BuildPrompt(req)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if p.System != "sys" {
		t.Errorf("System = %q", p.System)
	}
	if p.Text != "tell me more about it" {
		t.Errorf("Text = %q", p.Text)
	}
	if len(p.Context) != 2 || p.Context[0].Role != models.RoleUser || p.Context[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected context: %#v", p.Context)
	}
}

func TestBuildPromptDropsLeadingAssistantTurns(t *testing.T) {
	req := Request{History: []models.Message{
		{Role: models.RoleAssistant, Content: "Welcome back"},
		{Role: models.RoleAssistant, Content: "Still here"},
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleAssistant, Content: "a1"},
		{Role: models.RoleUser, Content: "q2"},
	}}
	p, err := BuildPrompt(req)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if len(p.Context) != 2 || p.Context[0].Text != "q1" {
		t.Fatalf("context should start at the first user turn, got %#v", p.Context)
	}
}

func TestBuildPromptDefaultTextWithAttachment(t *testing.T) {
	req := Request{
		History: []models.Message{{Role: models.RoleUser, Content: "   "}},
		Attachment: &models.Attachment{
			Name:    "notes.txt",
			Type:    "text/plain",
			DataURI: EncodeDataURI("text/plain", []byte("hello")),
		},
	}
	p, err := BuildPrompt(req)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if p.Text != DefaultAttachmentPrompt {
		t.Errorf("Text = %q, want %q", p.Text, DefaultAttachmentPrompt)
	}
	if p.InlineData == nil || string(p.InlineData.Data) != "hello" || p.InlineData.MIMEType != "text/plain" {
		t.Fatalf("unexpected inline data: %#v", p.InlineData)
	}
}

func TestBuildPromptInvalidAttachment(t *testing.T) {
	req := Request{
		History:    []models.Message{{Role: models.RoleUser, Content: "look"}},
		Attachment: &models.Attachment{Name: "x.png", Type: "image/png", DataURI: "data:image/png;base64,@@@"},
	}
	if _, err := BuildPrompt(req); !errors.Is(err, ErrInvalidAttachment) {
		t.Fatalf("expected ErrInvalidAttachment, got %v", err)
	}
}

func TestDecodeDataURI(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		wantMIME string
		wantData string
		wantErr  bool
	}{
		{name: "base64", uri: "data:image/png;base64,aGk=", wantMIME: "image/png", wantData: "hi"},
		{name: "unpadded base64", uri: "data:image/png;base64,aGk", wantMIME: "image/png", wantData: "hi"},
		{name: "percent encoded", uri: "data:text/plain,a%20b", wantMIME: "text/plain", wantData: "a b"},
		{name: "default mime", uri: "data:;base64,aGk=", wantMIME: "text/plain", wantData: "hi"},
		{name: "not a data uri", uri: "https://example.com/x.png", wantErr: true},
		{name: "no comma", uri: "data:image/png;base64", wantErr: true},
		{name: "empty payload", uri: "data:image/png;base64,", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDataURI(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAttachment) {
					t.Fatalf("expected ErrInvalidAttachment, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDataURI: %v", err)
			}
			if got.MIMEType != tt.wantMIME || string(got.Data) != tt.wantData {
				t.Fatalf("got %q %q", got.MIMEType, got.Data)
			}
		})
	}
}
