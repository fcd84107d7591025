package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// LLMScript configures the scripted reply for one agent route.
// FailTimes > 0 answers FailStatus that many times before succeeding;
// FailTimes < 0 fails on every call.
type LLMScript struct {
	Content    string
	FailStatus int
	FailTimes  int
	Delay      time.Duration
}

// LLMRequest is one captured chat completion call.
type LLMRequest struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	Auth        string
}

// ScriptedLLM is an HTTP mock speaking the chat completions wire format.
// Requests are routed to scripts by a substring of the system prompt; the
// longest matching route wins, with "" as the catch-all.
type ScriptedLLM struct {
	mu       sync.Mutex
	scripts  map[string]*LLMScript
	requests []LLMRequest
	server   *httptest.Server
}

// NewScriptedLLM starts the mock provider.
func NewScriptedLLM() *ScriptedLLM {
	s := &ScriptedLLM{scripts: map[string]*LLMScript{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", s.handleCompletion)
	s.server = httptest.NewServer(mux)
	return s
}

// Close shuts the mock down.
func (s *ScriptedLLM) Close() { s.server.Close() }

// URL returns the provider base URL.
func (s *ScriptedLLM) URL() string { return s.server.URL }

// Route installs a script for requests whose system prompt contains match.
func (s *ScriptedLLM) Route(match string, script LLMScript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[match] = &script
}

// Requests returns all captured calls in arrival order.
func (s *ScriptedLLM) Requests() []LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LLMRequest(nil), s.requests...)
}

// RequestsFor returns the captured calls whose system prompt contains match.
func (s *ScriptedLLM) RequestsFor(match string) []LLMRequest {
	var out []LLMRequest
	for _, req := range s.Requests() {
		if strings.Contains(strings.ToLower(req.System), strings.ToLower(match)) {
			out = append(out, req)
		}
	}
	return out
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

func (s *ScriptedLLM) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var wire wireRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := LLMRequest{
		Model:       wire.Model,
		Temperature: wire.Temperature,
		MaxTokens:   wire.MaxTokens,
		Auth:        r.Header.Get("Authorization"),
	}
	for _, msg := range wire.Messages {
		switch msg.Role {
		case "system":
			req.System = msg.Content
		case "user":
			req.User = msg.Content
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	script := s.match(req.System)
	var fail int
	if script.FailTimes != 0 && script.FailStatus != 0 {
		fail = script.FailStatus
		if script.FailTimes > 0 {
			script.FailTimes--
		}
	}
	content := script.Content
	delay := script.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if fail != 0 {
		http.Error(w, `{"error":{"message":"scripted failure"}}`, fail)
		return
	}
	if content == "" {
		content = "OK"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     100,
			"completion_tokens": 50,
			"total_tokens":      150,
		},
	})
}

// match returns the script with the longest route contained in the system
// prompt. Callers hold s.mu.
func (s *ScriptedLLM) match(system string) *LLMScript {
	lower := strings.ToLower(system)
	var best *LLMScript
	bestLen := -1
	for route, script := range s.scripts {
		if len(route) > bestLen && strings.Contains(lower, strings.ToLower(route)) {
			best = script
			bestLen = len(route)
		}
	}
	if best == nil {
		return &LLMScript{}
	}
	return best
}
