package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"studybuddy-backend/internal/models"
)

type capturedCall struct {
	APIKey string
	Body   struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MIMEType string `json:"mimeType"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"contents"`
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
	}
}

func newGeminiServer(t *testing.T, status int, body string) (*httptest.Server, func() []capturedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []capturedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var c capturedCall
		c.APIKey = r.Header.Get("x-goog-api-key")
		if c.APIKey == "" {
			c.APIKey = r.URL.Query().Get("key")
		}
		_ = json.Unmarshal(raw, &c.Body)
		mu.Lock()
		calls = append(calls, c)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedCall(nil), calls...)
	}
}

const okBody = `{"candidates":[{"content":{"role":"model","parts":[{"text":"X is a variable."}]},"finishReason":"STOP"}]}`

func TestGeminiGenerateMapsRolesAndSystem(t *testing.T) {
	srv, calls := newGeminiServer(t, http.StatusOK, okBody)
	g := NewGeminiGenerator("server-key", "gemini-test", srv.URL)

	reply, err := g.Generate(context.Background(), Request{
		SystemInstruction: "be a tutor",
		History: []models.Message{
			{Role: models.RoleUser, Content: "q1"},
			{Role: models.RoleAssistant, Content: "a1"},
			{Role: models.RoleUser, Content: "What is X?"},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "X is a variable." {
		t.Fatalf("reply = %q", reply)
	}

	got := calls()
	if len(got) != 1 {
		t.Fatalf("expected 1 call, got %d", len(got))
	}
	c := got[0]
	if c.APIKey != "server-key" {
		t.Errorf("api key = %q", c.APIKey)
	}
	roles := []string{}
	for _, content := range c.Body.Contents {
		roles = append(roles, content.Role)
	}
	if strings.Join(roles, ",") != "user,model,user" {
		t.Errorf("roles = %v", roles)
	}
	if c.Body.SystemInstruction == nil || c.Body.SystemInstruction.Parts[0].Text != "be a tutor" {
		t.Errorf("system instruction missing: %+v", c.Body.SystemInstruction)
	}
}

func TestGeminiGenerateUsesRequestKey(t *testing.T) {
	srv, calls := newGeminiServer(t, http.StatusOK, okBody)
	g := NewGeminiGenerator("", "gemini-test", srv.URL)

	_, err := g.Generate(context.Background(), Request{
		History: []models.Message{{Role: models.RoleUser, Content: "hi"}},
		APIKey:  "caller-key",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := calls(); len(got) != 1 || got[0].APIKey != "caller-key" {
		t.Fatalf("request key not used: %+v", got)
	}
}

func TestGeminiGenerateWithoutAnyKey(t *testing.T) {
	g := NewGeminiGenerator("", "gemini-test", "http://127.0.0.1:1")
	_, err := g.Generate(context.Background(), Request{
		History: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestGeminiGenerateAttachment(t *testing.T) {
	srv, calls := newGeminiServer(t, http.StatusOK, okBody)
	g := NewGeminiGenerator("k", "gemini-test", srv.URL)

	_, err := g.Generate(context.Background(), Request{
		History: []models.Message{{Role: models.RoleUser, Content: ""}},
		Attachment: &models.Attachment{
			Name:    "pic.png",
			Type:    "image/png",
			DataURI: EncodeDataURI("image/png", []byte{0x89, 'P', 'N', 'G'}),
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c := calls()[0]
	last := c.Body.Contents[len(c.Body.Contents)-1]
	if len(last.Parts) != 2 {
		t.Fatalf("expected text and inline data parts, got %d", len(last.Parts))
	}
	if last.Parts[0].Text != DefaultAttachmentPrompt {
		t.Errorf("text = %q", last.Parts[0].Text)
	}
	if last.Parts[1].InlineData == nil || last.Parts[1].InlineData.MIMEType != "image/png" {
		t.Errorf("inline data = %+v", last.Parts[1].InlineData)
	}
}

func TestGeminiGenerateClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`,
			want:   ErrRateLimited,
		},
		{
			name:   "invalid key",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`,
			want:   ErrAuthentication,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newGeminiServer(t, tt.status, tt.body)
			g := NewGeminiGenerator("k", "gemini-test", srv.URL)
			_, err := g.Generate(context.Background(), Request{
				History: []models.Message{{Role: models.RoleUser, Content: "hi"}},
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGeminiGenerateUpstreamError(t *testing.T) {
	srv, _ := newGeminiServer(t, http.StatusInternalServerError,
		`{"error":{"code":500,"message":"internal failure","status":"INTERNAL"}}`)
	g := NewGeminiGenerator("k", "gemini-test", srv.URL)
	_, err := g.Generate(context.Background(), Request{
		History: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	var up *UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected *UpstreamError, got %T %v", err, err)
	}
	if !strings.Contains(up.Message, "internal failure") {
		t.Fatalf("raw message lost: %q", up.Message)
	}
}
