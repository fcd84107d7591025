package models

import (
	"sync"
	"time"
)

// SessionStatus is the lifecycle status of one analysis session.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusSuccess   SessionStatus = "success"
	SessionStatusPartial   SessionStatus = "partial"
	SessionStatusError     SessionStatus = "error"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the session has ended.
func (s SessionStatus) Terminal() bool {
	return s != SessionStatusRunning
}

// Session owns the per-request state of one analysis run. Each AgentRecord
// in Records has exactly one writer (the runner for that agent id) and
// carries its own lock; the session mu guards the session-level fields and
// the map structure itself.
type Session struct {
	ID     string
	Symbol string

	mu          sync.RWMutex
	stock       *StockContext
	records     map[string]*AgentRecord
	recordOrder []string
	stageCursor int
	status      SessionStatus
	createdAt   time.Time
	endedAt     *time.Time
}

// NewSession creates a running session for the given symbol.
func NewSession(id, symbol string) *Session {
	return &Session{
		ID:        id,
		Symbol:    symbol,
		records:   make(map[string]*AgentRecord),
		status:    SessionStatusRunning,
		createdAt: time.Now(),
	}
}

// SetStock attaches the immutable stock context once it is resolved.
func (s *Session) SetStock(sc *StockContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock = sc
}

// Stock returns the stock context, or nil before resolution.
func (s *Session) Stock() *StockContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stock
}

// AddRecord registers the record for an agent and hands back the handle its
// runner will own. Insertion order is preserved for aggregation output.
func (s *Session) AddRecord(rec *AgentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.AgentID] = rec
	s.recordOrder = append(s.recordOrder, rec.AgentID)
}

// Record returns the record for an agent id, or nil.
func (s *Session) Record(agentID string) *AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[agentID]
}

// Records returns the record handles in insertion order. Callers must only
// inspect records whose runners have finished.
func (s *Session) Records() []*AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AgentRecord, 0, len(s.recordOrder))
	for _, id := range s.recordOrder {
		out = append(out, s.records[id])
	}
	return out
}

// AdvanceStage moves the stage cursor; stages are strictly serialised.
func (s *Session) AdvanceStage(stage int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stageCursor = stage
}

// StageCursor returns the currently executing stage (0 before stage 1 starts).
func (s *Session) StageCursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stageCursor
}

// End records the terminal status. The first terminal write wins; later
// calls are ignored so a cancel racing a natural completion stays stable.
func (s *Session) End(status SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	now := time.Now()
	s.status = status
	s.endedAt = &now
}

// Status returns the current session status.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// EndedAt returns the session end time, or nil while running.
func (s *Session) EndedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endedAt
}

// SessionSnapshot is the read-only JSON view served by the sessions API.
type SessionSnapshot struct {
	ID          string         `json:"id"`
	Symbol      string         `json:"symbol"`
	Status      SessionStatus  `json:"status"`
	StageCursor int            `json:"stage_cursor"`
	Stock       *StockContext  `json:"stock,omitempty"`
	Records     []*AgentRecord `json:"records"`
	CreatedAt   time.Time      `json:"created_at"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
}

// Snapshot copies the session state for serialisation. Records are cloned
// under their own locks, so a snapshot of a live session is safe to read
// and marshal while runners are still writing.
func (s *Session) Snapshot() *SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]*AgentRecord, 0, len(s.recordOrder))
	for _, id := range s.recordOrder {
		recs = append(recs, s.records[id].Clone())
	}
	return &SessionSnapshot{
		ID:          s.ID,
		Symbol:      s.Symbol,
		Status:      s.status,
		StageCursor: s.stageCursor,
		Stock:       s.stock,
		Records:     recs,
		CreatedAt:   s.createdAt,
		EndedAt:     s.endedAt,
	}
}
