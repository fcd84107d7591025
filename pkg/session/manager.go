// Package session tracks running and recently finished analysis sessions:
// launch, lookup, cancellation, and retention of terminal sessions.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/engine"
	"github.com/tickermind/tickermind/pkg/events"
	"github.com/tickermind/tickermind/pkg/models"
)

// ErrSessionNotFound indicates an unknown or already-purged session id.
var ErrSessionNotFound = errors.New("session not found")

// Recorder archives finished sessions. The catalog store implements it;
// a nil recorder disables archiving.
type Recorder interface {
	Archive(ctx context.Context, snap *models.SessionSnapshot) error
}

// Active is one tracked session: the handle, its progress stream, and the
// cancel that stops it.
type Active struct {
	Session *models.Session
	Stream  *events.Stream
	cancel  context.CancelFunc
	done    chan struct{}
}

// Done is closed when the session's run goroutine has finished.
func (a *Active) Done() <-chan struct{} {
	return a.done
}

// Cancel requests cooperative cancellation of the session.
func (a *Active) Cancel() {
	a.cancel()
}

// Manager owns the session table. Finished sessions stay queryable until
// the retention sweep purges them.
type Manager struct {
	engine   *engine.Engine
	settings config.SessionSettings
	capacity int
	recorder Recorder
	log      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Active

	sweepStop chan struct{}
	sweepDone chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates a manager and starts its retention sweeper.
func NewManager(eng *engine.Engine, settings config.SessionSettings, streamCapacity int, logger *slog.Logger) *Manager {
	m := &Manager{
		engine:    eng,
		settings:  settings,
		capacity:  streamCapacity,
		log:       logger.With("component", "session.manager"),
		sessions:  map[string]*Active{},
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// SetRecorder attaches a session archive. Must be called before Start.
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// Start validates the request, registers a new session, and launches its
// run on a background goroutine. The caller consumes progress from the
// returned stream; the stream closes after the terminal event.
func (m *Manager) Start(req engine.AnalyzeRequest) (*Active, error) {
	session, err := m.engine.NewSession(req)
	if err != nil {
		return nil, err
	}

	// Session lifetime is detached from the submitting request: an HTTP
	// disconnect cancels via the stream consumer, not via request context.
	ctx, cancel := context.WithCancel(context.Background())
	active := &Active{
		Session: session,
		Stream:  events.NewStream(m.capacity),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[session.ID] = active
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(active.done)
		defer cancel()
		if err := m.engine.Analyze(ctx, req, session, active.Stream); err != nil {
			m.log.Error("session run failed", "session_id", session.ID, "error", err)
			session.End(models.SessionStatusError)
			active.Stream.Close()
		}
		m.archive(session)
	}()

	m.log.Info("session started", "session_id", session.ID, "symbol", req.Symbol)
	return active, nil
}

// Get returns the tracked session with the given id.
func (m *Manager) Get(id string) (*Active, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return active, nil
}

// Cancel cancels a running session. Cancelling a terminal session is a
// no-op, not an error.
func (m *Manager) Cancel(id string) error {
	active, err := m.Get(id)
	if err != nil {
		return err
	}
	active.Cancel()
	return nil
}

// Snapshots returns the snapshots of all tracked sessions, newest first.
func (m *Manager) Snapshots() []*models.SessionSnapshot {
	m.mu.RLock()
	actives := make([]*Active, 0, len(m.sessions))
	for _, active := range m.sessions {
		actives = append(actives, active)
	}
	m.mu.RUnlock()

	out := make([]*models.SessionSnapshot, 0, len(actives))
	for _, active := range actives {
		out = append(out, active.Session.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Stop cancels every running session, waits for their goroutines, and
// stops the sweeper. Used during graceful shutdown.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.RLock()
	for _, active := range m.sessions {
		active.Cancel()
	}
	m.mu.RUnlock()

	close(m.sweepStop)

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		<-m.sweepDone
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// archive hands the terminal session to the recorder, if one is attached.
// Archive failures are logged, not surfaced: history is best effort.
func (m *Manager) archive(session *models.Session) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.recorder.Archive(ctx, session.Snapshot()); err != nil {
		m.log.Error("failed to archive session", "session_id", session.ID, "error", err)
	}
}

// sweepLoop purges terminal sessions past retention.
func (m *Manager) sweepLoop() {
	defer close(m.sweepDone)

	interval := m.settings.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep(time.Now())
		case <-m.sweepStop:
			return
		}
	}
}

// sweep removes sessions that ended before now minus retention.
func (m *Manager) sweep(now time.Time) {
	cutoff := now.Add(-m.settings.Retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, active := range m.sessions {
		if !active.Session.Status().Terminal() {
			continue
		}
		ended := active.Session.EndedAt()
		if ended == nil || ended.After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		m.log.Debug("session purged", "session_id", id)
	}
}
