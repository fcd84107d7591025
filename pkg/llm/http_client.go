package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/models"
)

// maxErrorBodyBytes bounds how much of an upstream error body is retained.
const maxErrorBodyBytes = 4 << 10

// connectTimeout bounds dialing and TLS setup against a provider endpoint.
// An unreachable endpoint must surface as a retryable Transport error well
// inside the per-call deadline, not consume it.
const connectTimeout = 10 * time.Second

// HTTPClient talks to one OpenAI-compatible chat-completions endpoint.
type HTTPClient struct {
	provider string
	baseURL  string
	apiKey   string
	retry    config.RetrySettings
	tokenCap int
	http     *http.Client
	log      *slog.Logger
}

// NewHTTPClient builds a client for one provider endpoint. tokenCap is the
// hard output-token ceiling; zero uses the process default.
func NewHTTPClient(provider, baseURL, apiKey string, retry config.RetrySettings, tokenCap int, logger *slog.Logger) *HTTPClient {
	if tokenCap <= 0 {
		tokenCap = config.DefaultMaxOutputTokens
	}
	return &HTTPClient{
		provider: provider,
		baseURL:  baseURL,
		apiKey:   apiKey,
		retry:    retry,
		tokenCap: tokenCap,
		// Per-call deadlines come from the caller's context; the transport
		// only bounds connection setup.
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
			},
		},
		log:  logger.With("component", "llm.client", "provider", provider),
	}
}

// Provider implements Client.
func (c *HTTPClient) Provider() string {
	return c.provider
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Complete implements Client. Timeout and Transport failures are retried
// with exponential backoff; refusals propagate immediately with the
// upstream code and message attached.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, &Error{Kind: models.ErrorKindAuthMissing, Message: fmt.Sprintf("no API key configured for provider %s", c.provider)}
	}

	tokens := req.MaxOutputTokens
	if tokens <= 0 || tokens > c.tokenCap {
		tokens = c.tokenCap
	}

	body, err := json.Marshal(chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   tokens,
		Stream:      false,
	})
	if err != nil {
		return nil, &Error{Kind: models.ErrorKindTransport, Message: "failed to marshal request", Err: err}
	}

	var lastErr *Error
	attempts := 1 + c.retry.LLMAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
			c.log.Debug("retrying LLM call", "attempt", attempt, "model", req.Model)
		}

		resp, cerr := c.do(ctx, body)
		if cerr == nil {
			return resp, nil
		}
		if !cerr.Retryable() {
			return nil, cerr
		}
		lastErr = cerr
		c.log.Warn("LLM call failed",
			"attempt", attempt,
			"model", req.Model,
			"error_kind", cerr.Kind,
			"error", cerr.Message)
	}
	return nil, lastErr
}

func (c *HTTPClient) do(ctx context.Context, body []byte) (*Response, *Error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: models.ErrorKindTransport, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, wrapTransport(ctx, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodyBytes))
		return nil, &Error{
			Kind:         classifyStatus(httpResp.StatusCode, string(detail)),
			ProviderCode: strconv.Itoa(httpResp.StatusCode),
			Message:      string(detail),
		}
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, wrapTransport(ctx, err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &Error{Kind: models.ErrorKindTransport, Message: "failed to decode response", Err: err}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &Error{Kind: models.ErrorKindProviderRefused, Message: "response contains no choices"}
	}

	choice := chatResp.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		Usage:        chatResp.Usage,
		ProviderCode: choice.FinishReason,
	}, nil
}

// backoff sleeps before retry n (1-based), doubling from the base up to the
// cap, and aborts early on context cancellation.
func (c *HTTPClient) backoff(ctx context.Context, n int) *Error {
	delay := c.retry.BackoffBase << (n - 1)
	if delay > c.retry.BackoffCap || delay <= 0 {
		delay = c.retry.BackoffCap
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return wrapTransport(ctx, ctx.Err())
	}
}
