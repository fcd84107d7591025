package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tickermind/tickermind/pkg/models"
)

// Error is the typed failure every client method returns. Kind drives retry
// decisions; ProviderCode and Message carry the raw upstream detail through
// to the agent record untouched.
type Error struct {
	Kind         models.ErrorKind
	ProviderCode string // HTTP status or provider-specific error code
	Message      string
	Err          error
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	if e.ProviderCode != "" {
		return fmt.Sprintf("llm %s (provider code %s): %s", e.Kind, e.ProviderCode, e.Message)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the client retries this failure.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// KindOf extracts the error kind from any error returned by a client.
// Unclassified errors map to Transport.
func KindOf(err error) models.ErrorKind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return models.ErrorKindCancelled
	}
	return models.ErrorKindTransport
}

// classifyStatus maps an HTTP response status to an error kind. 4xx means
// the provider understood and refused the request, so retrying is useless;
// 5xx and 429 are treated as transient.
func classifyStatus(status int, body string) models.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return models.ErrorKindTransport
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return models.ErrorKindAuthMissing
	case status >= 400 && status < 500:
		if looksLikeTokenLimit(body) {
			return models.ErrorKindTokenLimitExceeded
		}
		return models.ErrorKindProviderRefused
	default:
		return models.ErrorKindTransport
	}
}

func looksLikeTokenLimit(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "max_tokens") ||
		strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "context_length_exceeded")
}

// wrapTransport converts a transport-level failure (dial, TLS, read) into a
// typed error, honouring context outcomes.
func wrapTransport(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: models.ErrorKindTimeout, Message: "request deadline exceeded", Err: err}
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: models.ErrorKindCancelled, Message: "request cancelled", Err: err}
	default:
		return &Error{Kind: models.ErrorKindTransport, Message: err.Error(), Err: err}
	}
}
