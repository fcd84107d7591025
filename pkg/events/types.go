// Package events defines the progress events a session publishes while it
// runs and the bounded stream that delivers them to a subscriber.
//
// Events for one session are ordered; across sessions no ordering is
// promised. A slow subscriber may lose non-critical events (agent started /
// evidence markers) but never a terminal event: the stream drops oldest
// droppable entries first and grows for critical ones.
package events

import (
	"time"

	"github.com/tickermind/tickermind/pkg/models"
)

// Event type constants. These names are the wire contract of the NDJSON
// progress stream.
const (
	EventTypeStageStarted   = "stage.started"
	EventTypeStageCompleted = "stage.completed"

	EventTypeAgentStarted   = "agent.started"
	EventTypeAgentEvidence  = "agent.evidence_ready"
	EventTypeAgentCompleted = "agent.completed"
	EventTypeAgentFailed    = "agent.failed"
	EventTypeAgentCancelled = "agent.cancelled"

	EventTypeSessionCompleted = "session.completed"
)

// Event is one progress emission. Fields not relevant to the event type are
// omitted from the JSON encoding.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`

	Stage   int    `json:"stage,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	Role    string `json:"role,omitempty"`

	// Agent terminal payload.
	Output       string           `json:"output,omitempty"`
	ErrorKind    models.ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Attempt      int              `json:"attempt,omitempty"`
	ElapsedMs    int64            `json:"elapsed_ms,omitempty"`

	// Evidence payload (agent.evidence_ready).
	Evidence *models.EvidenceBundle `json:"evidence,omitempty"`

	// Session terminal payload (session.completed).
	SessionStatus models.SessionStatus    `json:"session_status,omitempty"`
	Aggregate     *models.SessionSnapshot `json:"aggregate,omitempty"`
}

// Critical reports whether the event must never be dropped by a lagging
// stream: stage boundaries, agent terminals, and the session terminal.
func (e Event) Critical() bool {
	switch e.Type {
	case EventTypeAgentStarted, EventTypeAgentEvidence:
		return false
	}
	return true
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventTypeSessionCompleted
}

// Now returns the event timestamp format used across the engine.
func Now() string {
	return time.Now().Format(time.RFC3339Nano)
}

// ProgressSink receives session progress events. Emit must not block the
// caller beyond a bounded enqueue: a sink that cannot keep up sheds
// non-critical events instead of stalling the scheduler.
type ProgressSink interface {
	Emit(ev Event)
}

// NopSink discards all events. Used when no subscriber is attached.
type NopSink struct{}

// Emit implements ProgressSink.
func (NopSink) Emit(Event) {}
