package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"api 429", genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}, ErrRateLimited},
		{"api pointer 401", &genai.APIError{Code: 401, Message: "nope"}, ErrAuthentication},
		{"api 400 invalid key", genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key.", Status: "INVALID_ARGUMENT"}, ErrAuthentication},
		{"wrapped api 403", fmt.Errorf("call: %w", genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}), ErrAuthentication},
		{"text resource exhausted", errors.New("[GoogleGenerativeAI Error]: ResourceExhausted"), ErrRateLimited},
		{"openai style 429", errors.New("API returned unexpected status code: 429: Rate limit reached"), ErrRateLimited},
		{"openai style 401", errors.New("API returned unexpected status code: 401: Incorrect API key provided"), ErrAuthentication},
		{"already classified", fmt.Errorf("%w: x", ErrAuthentication), ErrAuthentication},
		{"context canceled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.in); !errors.Is(got, tt.want) {
				t.Fatalf("Classify(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassifyUpstreamKeepsMessage(t *testing.T) {
	got := Classify(genai.APIError{Code: 500, Message: "backend exploded", Status: "INTERNAL"})
	var up *UpstreamError
	if !errors.As(got, &up) {
		t.Fatalf("expected *UpstreamError, got %T", got)
	}
	if up.StatusCode != 500 || up.Message != "backend exploded" {
		t.Fatalf("unexpected upstream error: %+v", up)
	}

	got = Classify(errors.New("connection reset by peer"))
	if !errors.As(got, &up) || up.Message != "connection reset by peer" {
		t.Fatalf("raw message not preserved: %v", got)
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) should be nil")
	}
}
