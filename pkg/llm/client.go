// Package llm dispatches agent prompts to OpenAI-compatible chat-completion
// endpoints. One Client per provider; the Registry hands them out by name
// and owns the credential lookup.
package llm

import "context"

// Request is one completion call on behalf of an agent.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64

	// MaxOutputTokens is the caller's output budget. The client clamps it
	// to the process cap before it reaches the wire.
	MaxOutputTokens int
}

// Usage is the provider-reported token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a successful completion.
type Response struct {
	Content string
	Usage   Usage

	// ProviderCode is the upstream finish reason (e.g. "stop", "length").
	ProviderCode string
}

// Client completes prompts against one provider. Implementations retry
// transient failures internally; any error returned is final for this call
// and carries a models.ErrorKind via *Error.
type Client interface {
	// Provider returns the provider name this client is bound to.
	Provider() string

	// Complete performs one logical completion, including internal retries.
	Complete(ctx context.Context, req Request) (*Response, error)
}
