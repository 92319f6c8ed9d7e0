package tutor

import (
	"context"
	"errors"
	"testing"

	"studybuddy-backend/internal/history"
	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/models"
)

func TestTurnRoundTrip(t *testing.T) {
	mock := &llm.MockGenerator{Reply: "X is ..."}
	tu := New(mock, "")

	conv := history.NewConversation("")
	got, err := tu.Turn(context.Background(), conv, "What is X?", nil, "")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected [greeting, user, assistant], got %d messages", len(got))
	}
	if !history.IsGreeting(got[0]) {
		t.Errorf("first message should stay the greeting: %#v", got[0])
	}
	if got[1].Role != models.RoleUser || got[1].Content != "What is X?" {
		t.Errorf("unexpected user message: %#v", got[1])
	}
	if got[2].Role != models.RoleAssistant || got[2].Content != "X is ..." {
		t.Errorf("unexpected assistant message: %#v", got[2])
	}

	p, ok := mock.LastPrompt()
	if !ok {
		t.Fatal("generator was not called")
	}
	if len(p.Context) != 0 || p.Text != "What is X?" {
		t.Fatalf("outbound request should only hold the user turn, got %#v", p)
	}
	if p.System != llm.TutorInstruction {
		t.Error("tutor instruction not sent")
	}
	if len(conv) != 1 {
		t.Error("input conversation was modified")
	}
}

func TestTurnAttachmentOnly(t *testing.T) {
	mock := &llm.MockGenerator{Reply: "It is a cat."}
	tu := New(mock, "")
	att := &models.Attachment{Name: "cat.png", Type: "image/png", DataURI: llm.EncodeDataURI("image/png", []byte("png"))}

	got, err := tu.Turn(context.Background(), history.NewConversation(""), "", att, "")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	p, _ := mock.LastPrompt()
	if p.Text != llm.DefaultAttachmentPrompt {
		t.Errorf("outbound text = %q", p.Text)
	}
	if got[1].Attachment == nil || got[1].Attachment.DataURI != "" || got[1].Attachment.Name != "cat.png" {
		t.Errorf("stored attachment should keep metadata only: %#v", got[1].Attachment)
	}
}

func TestTurnFailureKeepsUserMessage(t *testing.T) {
	mock := &llm.MockGenerator{Err: llm.ErrRateLimited}
	tu := New(mock, "")

	got, err := tu.Turn(context.Background(), history.NewConversation(""), "q", nil, "")
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if len(got) != 2 || got[1].Content != "q" {
		t.Fatalf("user message should be kept: %#v", got)
	}
}

func TestTurnRejectsEmpty(t *testing.T) {
	tu := New(llm.NewMockGenerator(), "")
	conv := history.NewConversation("")
	got, err := tu.Turn(context.Background(), conv, "  ", nil, "")
	if !errors.Is(err, ErrEmptyTurn) {
		t.Fatalf("expected ErrEmptyTurn, got %v", err)
	}
	if len(got) != 1 {
		t.Fatal("conversation should be unchanged")
	}
}

func TestReplyPassesRequestKey(t *testing.T) {
	mock := llm.NewMockGenerator()
	tu := New(mock, "custom")
	conv := append(history.NewConversation(""), models.Message{Role: models.RoleUser, Content: "hi"})
	if _, err := tu.Reply(context.Background(), conv, nil, "user-key"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if keys := mock.Keys(); len(keys) != 1 || keys[0] != "user-key" {
		t.Fatalf("keys = %v", keys)
	}
	if p, _ := mock.LastPrompt(); p.System != "custom" {
		t.Fatalf("system = %q", p.System)
	}
}
