package models

import (
	"sync"
	"time"
)

// AgentStatus tracks a single agent run through its state machine.
// Transitions form a DAG; exactly one terminal status is ever written.
type AgentStatus string

const (
	AgentStatusIdle             AgentStatus = "idle"
	AgentStatusFetchingEvidence AgentStatus = "fetching_evidence"
	AgentStatusAssembling       AgentStatus = "assembling"
	AgentStatusAwaitingBudget   AgentStatus = "awaiting_budget"
	AgentStatusCallingLLM       AgentStatus = "calling_llm"
	AgentStatusCompleted        AgentStatus = "completed"
	AgentStatusFailed           AgentStatus = "failed"
	AgentStatusCancelled        AgentStatus = "cancelled"
)

// Terminal reports whether the status is one of the three terminal states.
func (s AgentStatus) Terminal() bool {
	switch s {
	case AgentStatusCompleted, AgentStatusFailed, AgentStatusCancelled:
		return true
	}
	return false
}

// AgentRecord is the session-scoped run record for one agent. It is mutated
// by exactly one runner goroutine, always through the setter methods below;
// mu makes those writes visible to Clone, which the sessions API uses to
// serialise records of a still-running session. Post-terminal readers (the
// aggregation fold, prior-output assembly) may read fields directly: the
// stage scheduler's WaitGroup provides their happens-before edge.
type AgentRecord struct {
	mu sync.Mutex

	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
	Stage   int    `json:"stage"`

	Status  AgentStatus `json:"status"`
	Attempt int         `json:"attempt"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	PromptChars int    `json:"prompt_chars,omitempty"`
	Output      string `json:"output,omitempty"`

	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ProviderCode string    `json:"provider_code,omitempty"`

	Evidence *EvidenceBundle `json:"evidence,omitempty"`
}

// Start marks the run started.
func (r *AgentRecord) Start(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartedAt = &now
	r.Status = AgentStatusIdle
}

// SetStatus records a non-terminal state transition.
func (r *AgentRecord) SetStatus(status AgentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
}

// SetAttempt records the current attempt number.
func (r *AgentRecord) SetAttempt(attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Attempt = attempt
}

// SetEvidence attaches the collected evidence bundle.
func (r *AgentRecord) SetEvidence(bundle *EvidenceBundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Evidence = bundle
}

// SetPromptChars records the assembled prompt size.
func (r *AgentRecord) SetPromptChars(chars int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PromptChars = chars
}

// Finish writes the terminal state. The first terminal write wins; Finish
// reports whether this call was the one that landed.
func (r *AgentRecord) Finish(now time.Time, status AgentStatus, output string, kind ErrorKind, message, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status.Terminal() {
		return false
	}
	r.EndedAt = &now
	r.Status = status
	r.Output = output
	r.ErrorKind = kind
	r.ErrorMessage = message
	r.ProviderCode = code
	return true
}

// Clone returns a consistent copy safe to read and serialise while the
// owning runner keeps writing.
func (r *AgentRecord) Clone() *AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &AgentRecord{
		AgentID:      r.AgentID,
		Role:         r.Role,
		Stage:        r.Stage,
		Status:       r.Status,
		Attempt:      r.Attempt,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
		PromptChars:  r.PromptChars,
		Output:       r.Output,
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		ProviderCode: r.ProviderCode,
		Evidence:     r.Evidence,
	}
}

// Elapsed returns the wall time between start and end, or zero when the
// record has not reached a terminal state.
func (r *AgentRecord) Elapsed() time.Duration {
	if r.StartedAt == nil || r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(*r.StartedAt)
}
