// Package config provides the agent catalogue, analysis profiles, override
// persistence, and engine settings for the tickermind analysis engine.
package config

// Priority classifies how essential an agent is to a session outcome.
type Priority string

// Priority levels. Core agents can never be disabled; a session only counts
// as a full success when every core agent succeeded.
const (
	PriorityCore      Priority = "core"
	PriorityImportant Priority = "important"
	PriorityOptional  Priority = "optional"
)

// IsValid reports whether the priority is one of the known levels.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCore, PriorityImportant, PriorityOptional:
		return true
	}
	return false
}

// MinStage and MaxStage bound the four analysis waves:
// information → integration → risk → decision.
const (
	MinStage = 1
	MaxStage = 4
)

// DefaultMaxOutputTokens is the process-wide output-token ceiling. Upstream
// providers reject requests where input + max_output exceeds the model
// context, so the cap stays conservative: 8192 leaves headroom for prompts
// up to ~20k tokens on a 32k-context model.
const DefaultMaxOutputTokens = 8192

// ProviderBinding selects the LLM provider and sampling parameters for one
// agent.
type ProviderBinding struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
}

// EvidenceBinding ties an agent to one reference-data provider. Bindings
// are the dispatch table the evidence collector interprets: adding a data
// source to an agent is a catalogue change, not a code change.
type EvidenceBinding struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Transformer string `json:"transformer,omitempty"`
}

// AgentSpec is the static description of one analyst agent. Specs are
// immutable after load; consumers hold read-only references owned by the
// Registry.
type AgentSpec struct {
	ID           string          `json:"id"`
	Role         string          `json:"role"`
	Stage        int             `json:"stage"`
	Binding      ProviderBinding `json:"provider_binding"`
	SystemPrompt string          `json:"system_prompt"`
	Priority     Priority        `json:"priority"`

	// Dependencies lists upstream agent ids whose outputs feed this agent's
	// prompt. All dependencies must sit in an earlier stage (validated at
	// load). At runtime they are informational: a missing or failed
	// upstream yields an "(upstream unavailable)" marker, never a block.
	Dependencies []string `json:"dependencies,omitempty"`

	EvidenceBindings []EvidenceBinding `json:"evidence_bindings,omitempty"`

	// TaskDirective is the constant closing instruction appended to every
	// user prompt for this agent.
	TaskDirective string `json:"task_directive,omitempty"`

	Enabled bool `json:"enabled"`
}

// Core reports whether the agent is core priority.
func (s *AgentSpec) Core() bool {
	return s.Priority == PriorityCore
}

// OutputTokenCap returns the binding's output-token ceiling, falling back
// to the process-wide default when the binding does not set one.
func (s *AgentSpec) OutputTokenCap() int {
	if s.Binding.MaxOutputTokens > 0 {
		return s.Binding.MaxOutputTokens
	}
	return DefaultMaxOutputTokens
}
