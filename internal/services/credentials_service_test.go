package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"studybuddy-backend/internal/credentials"
	"studybuddy-backend/internal/crypto"
	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/tutor"
)

func newCredentialsService(t *testing.T, gen llm.Generator) CredentialsService {
	t.Helper()
	key, err := crypto.RandomKey()
	if err != nil {
		t.Fatal(err)
	}
	aead, err := crypto.NewAESGCM(key)
	if err != nil {
		t.Fatal(err)
	}
	return NewCredentialsService(credentials.NewVault(aead, time.Hour), tutor.New(gen, ""))
}

func TestCredentialsGenerateUsesSessionKey(t *testing.T) {
	ctx := context.Background()
	mock := &llm.MockGenerator{Reply: "hi"}
	svc := newCredentialsService(t, mock)

	id, err := svc.SaveKey(ctx, "", "  AIza-user-key ")
	if err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	if !svc.HasKey(ctx, id) {
		t.Fatal("HasKey should be true after SaveKey")
	}

	conv := []models.Message{{Role: models.RoleUser, Content: "question"}}
	reply, err := svc.Generate(ctx, id, conv, nil)
	if err != nil || reply != "hi" {
		t.Fatalf("Generate = %q, %v", reply, err)
	}
	if keys := mock.Keys(); len(keys) != 1 || keys[0] != "AIza-user-key" {
		t.Fatalf("generator saw keys %q", keys)
	}

	replaced, err := svc.SaveKey(ctx, id, "AIza-second")
	if err != nil {
		t.Fatal(err)
	}
	if svc.HasKey(ctx, id) || !svc.HasKey(ctx, replaced) {
		t.Fatal("replacing the key should move it to a new session id")
	}
}

func TestCredentialsRejectedKeyIsCleared(t *testing.T) {
	ctx := context.Background()
	svc := newCredentialsService(t, &llm.MockGenerator{Err: llm.ErrAuthentication})
	id, _ := svc.SaveKey(ctx, "", "AIza-bad")

	conv := []models.Message{{Role: models.RoleUser, Content: "question"}}
	if _, err := svc.Generate(ctx, id, conv, nil); !errors.Is(err, llm.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if svc.HasKey(ctx, id) {
		t.Fatal("rejected key should be cleared")
	}
	if _, err := svc.Generate(ctx, id, conv, nil); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestCredentialsRateLimitKeepsKey(t *testing.T) {
	ctx := context.Background()
	svc := newCredentialsService(t, &llm.MockGenerator{Err: llm.ErrRateLimited})
	id, _ := svc.SaveKey(ctx, "", "AIza-ok")

	conv := []models.Message{{Role: models.RoleUser, Content: "question"}}
	if _, err := svc.Generate(ctx, id, conv, nil); !errors.Is(err, llm.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if !svc.HasKey(ctx, id) {
		t.Fatal("rate limiting should not clear the key")
	}
}

func TestCredentialsValidation(t *testing.T) {
	ctx := context.Background()
	svc := newCredentialsService(t, llm.NewMockGenerator())

	for _, key := range []string{"", "   ", "YOUR_API_KEY_HERE"} {
		if _, err := svc.SaveKey(ctx, "", key); !errors.Is(err, ErrCredentialValidation) {
			t.Errorf("SaveKey(%q) = %v, want ErrCredentialValidation", key, err)
		}
	}

	id, _ := svc.SaveKey(ctx, "", "AIza-ok")
	bad := [][]models.Message{
		nil,
		{{Role: models.RoleAssistant, Content: "What do you want to learn?"}},
		{{Role: "system", Content: "x"}, {Role: models.RoleUser, Content: "y"}},
	}
	for _, conv := range bad {
		if _, err := svc.Generate(ctx, id, conv, nil); !errors.Is(err, ErrValidation) {
			t.Errorf("Generate(%+v) = %v, want ErrValidation", conv, err)
		}
	}
	if !svc.HasKey(ctx, id) {
		t.Fatal("a rejected request should not touch the key")
	}
	svc.ClearKey(ctx, id)
	if svc.HasKey(ctx, id) {
		t.Fatal("ClearKey should forget the key")
	}
}

func TestCredentialsGenerateRejectsBlankTurn(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockGenerator()
	svc := newCredentialsService(t, mock)
	id, _ := svc.SaveKey(ctx, "", "AIza-ok")

	blank := []models.Message{{Role: models.RoleUser, Content: "   "}}
	for _, att := range []*models.Attachment{nil, {Name: "notes.txt", Type: "text/plain"}} {
		if _, err := svc.Generate(ctx, id, blank, att); !errors.Is(err, ErrValidation) {
			t.Errorf("Generate(blank, %+v) = %v, want ErrValidation", att, err)
		}
	}
	if n := len(mock.Prompts()); n != 0 {
		t.Fatalf("model should not be called, got %d calls", n)
	}

	att := &models.Attachment{Name: "notes.txt", Type: "text/plain", DataURI: llm.EncodeDataURI("text/plain", []byte("cells"))}
	if _, err := svc.Generate(ctx, id, blank, att); err != nil {
		t.Fatalf("attachment-only turn: %v", err)
	}
	p, _ := mock.LastPrompt()
	if p.Text != llm.DefaultAttachmentPrompt || p.InlineData == nil {
		t.Fatalf("attachment-only prompt = %+v", p)
	}
}
