package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"studybuddy-backend/internal/history"
	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/tutor"
)

func newShell(gen llm.Generator) (*Shell, *MemoryCredentials) {
	creds := NewMemoryCredentials()
	return NewShell(tutor.New(gen, ""), creds, ""), creds
}

func TestShellStartsInCredentialEntry(t *testing.T) {
	s, _ := newShell(llm.NewMockGenerator())
	if s.State() != StateCredentialEntry {
		t.Fatalf("state = %v", s.State())
	}
	if _, err := s.Submit(context.Background(), "hi", nil); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("expected ErrSignedOut, got %v", err)
	}
}

func TestShellSignInRejectsPlaceholder(t *testing.T) {
	s, creds := newShell(llm.NewMockGenerator())
	for _, key := range []string{"", "YOUR_API_KEY_HERE", "PASTE_YOUR_KEY"} {
		if err := s.SignIn(key); err == nil {
			t.Errorf("SignIn(%q) should fail", key)
		}
	}
	if _, ok := creds.Get(); ok {
		t.Fatal("no credential should be stored")
	}
}

func TestShellRoundTrip(t *testing.T) {
	mock := &llm.MockGenerator{Reply: "X is ..."}
	s, _ := newShell(mock)
	if err := s.SignIn("key-1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	reply, err := s.Submit(context.Background(), "What is X?", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply != "X is ..." {
		t.Fatalf("reply = %q", reply)
	}
	msgs := s.Messages()
	if len(msgs) != 3 || !history.IsGreeting(msgs[0]) || msgs[1].Content != "What is X?" || msgs[2].Content != "X is ..." {
		t.Fatalf("unexpected conversation: %#v", msgs)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v", s.State())
	}
	if keys := mock.Keys(); len(keys) != 1 || keys[0] != "key-1" {
		t.Fatalf("credential not passed per request: %v", keys)
	}
}

func TestShellAuthenticationFailureSignsOut(t *testing.T) {
	mock := &llm.MockGenerator{Err: llm.ErrAuthentication}
	s, creds := newShell(mock)
	_ = s.SignIn("bad-key")

	_, err := s.Submit(context.Background(), "hello", nil)
	if !errors.Is(err, llm.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if _, ok := creds.Get(); ok {
		t.Error("credential should be cleared")
	}
	if len(s.Messages()) != 0 {
		t.Error("conversation should be empty")
	}
	if s.State() != StateCredentialEntry {
		t.Errorf("state = %v, want credential-entry", s.State())
	}
}

func TestShellRateLimitKeepsSession(t *testing.T) {
	mock := &llm.MockGenerator{Err: llm.ErrRateLimited}
	s, creds := newShell(mock)
	_ = s.SignIn("good-key")

	_, err := s.Submit(context.Background(), "hello", nil)
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if key, ok := creds.Get(); !ok || key != "good-key" {
		t.Error("credential should be kept")
	}
	msgs := s.Messages()
	if len(msgs) != 2 || msgs[1].Role != models.RoleUser || msgs[1].Content != "hello" {
		t.Fatalf("user message should remain: %#v", msgs)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

func TestShellOneOutstandingCall(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (string, error) {
		close(started)
		<-release
		return "done", nil
	})
	s, _ := newShell(gen)
	_ = s.SignIn("k")

	errc := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "first", nil)
		errc <- err
	}()
	<-started
	if s.State() != StateAwaitingResponse {
		t.Fatalf("state = %v", s.State())
	}
	if _, err := s.Submit(context.Background(), "second", nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("first Submit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first Submit did not finish")
	}
	if n := len(s.Messages()); n != 3 {
		t.Fatalf("expected 3 messages, got %d", n)
	}
}

func TestShellResetAndSignOut(t *testing.T) {
	s, creds := newShell(&llm.MockGenerator{Reply: "ok"})
	_ = s.SignIn("k")
	_, _ = s.Submit(context.Background(), "q", nil)

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if msgs := s.Messages(); len(msgs) != 1 || !history.IsGreeting(msgs[0]) {
		t.Fatalf("reset should leave only the greeting: %#v", msgs)
	}

	s.SignOut()
	if _, ok := creds.Get(); ok || s.State() != StateCredentialEntry {
		t.Fatal("sign out should clear the credential")
	}
	if err := s.Reset(); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("expected ErrSignedOut, got %v", err)
	}
}

func TestShellDiscardsReplyFromReplacedConversation(t *testing.T) {
	releaseA := make(chan struct{})
	startedA := make(chan struct{})
	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (string, error) {
		if req.APIKey == "key-A" {
			close(startedA)
			<-releaseA
			return "answer for A", nil
		}
		return "answer for B", nil
	})
	s, _ := newShell(gen)
	_ = s.SignIn("key-A")

	errc := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "question from A", nil)
		errc <- err
	}()
	<-startedA

	s.SignOut()
	if err := s.SignIn("key-B"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if _, err := s.Submit(context.Background(), "question from B", nil); err != nil {
		t.Fatalf("Submit B: %v", err)
	}
	close(releaseA)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSignedOut) {
			t.Fatalf("stale Submit = %v, want ErrSignedOut", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first Submit did not finish")
	}

	msgs := s.Messages()
	if len(msgs) != 3 || msgs[1].Content != "question from B" || msgs[2].Content != "answer for B" {
		t.Fatalf("stale reply leaked into the new conversation: %#v", msgs)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v", s.State())
	}
}

func TestShellResetDuringCallIsRefused(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (string, error) {
		close(started)
		<-release
		return "late", nil
	})
	s, _ := newShell(gen)
	_ = s.SignIn("k")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Submit(context.Background(), "q", nil)
	}()
	<-started
	if err := s.Reset(); !errors.Is(err, ErrBusy) {
		t.Fatalf("Reset while awaiting = %v, want ErrBusy", err)
	}
	close(release)
	<-done
	if n := len(s.Messages()); n != 3 {
		t.Fatalf("expected 3 messages, got %d", n)
	}
}

func TestShellSubmitTurnShape(t *testing.T) {
	mock := &llm.MockGenerator{Reply: "ok"}
	s, _ := newShell(mock)
	_ = s.SignIn("k")

	fileless := &models.Attachment{Name: "notes.txt", Type: "text/plain"}
	if _, err := s.Submit(context.Background(), "  ", fileless); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("attachment without data = %v, want ErrEmptyMessage", err)
	}
	if n := len(mock.Prompts()); n != 0 {
		t.Fatalf("model should not be called, got %d calls", n)
	}

	if _, err := s.Submit(context.Background(), "q", nil); err != nil {
		t.Fatal(err)
	}
	for i, m := range s.Messages() {
		if m.CreatedAt.IsZero() {
			t.Errorf("message %d has no timestamp", i)
		}
	}
}
