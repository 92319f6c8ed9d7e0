package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrConfiguration means the deployment has no usable server credential.
	ErrConfiguration = errors.New("model credential is not configured")
	// ErrAuthentication means the provider rejected (or never got) the credential.
	ErrAuthentication = errors.New("model credential was rejected")
	// ErrRateLimited means the provider is applying backpressure.
	ErrRateLimited = errors.New("model provider rate limit reached")
	// ErrInvalidAttachment means the attachment payload could not be decoded.
	ErrInvalidAttachment = errors.New("invalid attachment")
)

// UpstreamError is any other provider failure. Message is the provider's own text.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model provider error (%d): %s", e.StatusCode, e.Message)
	}
	return "model provider error: " + e.Message
}

// Classify maps a raw provider error onto ErrAuthentication, ErrRateLimited or
// *UpstreamError. Errors that are already classified, and context cancellation,
// pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrRateLimited) || errors.Is(err, ErrInvalidAttachment) {
		return err
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if apiErr, ok := asAPIError(err); ok {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden,
			apiErr.Status == "UNAUTHENTICATED", apiErr.Status == "PERMISSION_DENIED",
			mentionsInvalidKey(apiErr.Message):
			return fmt.Errorf("%w: %s", ErrAuthentication, apiErr.Message)
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Status == "RESOURCE_EXHAUSTED":
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		default:
			return &UpstreamError{StatusCode: apiErr.Code, Message: apiErr.Message}
		}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case mentionsInvalidKey(msg),
		strings.Contains(lower, "status code: 401"),
		strings.Contains(lower, "status code: 403"),
		strings.Contains(lower, "incorrect api key"):
		return fmt.Errorf("%w: %s", ErrAuthentication, msg)
	case strings.Contains(lower, "status code: 429"),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"),
		strings.Contains(msg, "ResourceExhausted"),
		strings.Contains(lower, "rate limit"):
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	}
	return &UpstreamError{Message: msg}
}

func mentionsInvalidKey(msg string) bool {
	return strings.Contains(msg, "API key not valid") ||
		strings.Contains(msg, "API_KEY_INVALID") ||
		strings.Contains(msg, "API key expired")
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}
