package events

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamClosed is returned by Next after the stream is closed and fully
// drained.
var ErrStreamClosed = errors.New("event stream closed")

// DefaultStreamCapacity bounds the pending-event queue of a Stream before
// shedding starts.
const DefaultStreamCapacity = 256

// Stream is a bounded in-memory ProgressSink with a single consumer.
// When the queue is full, the oldest non-critical event is discarded to
// make room; critical events (stage boundaries, terminals) are always
// enqueued, growing the queue if necessary.
type Stream struct {
	mu      sync.Mutex
	pending []Event
	notify  chan struct{}
	closed  bool
	max     int
	dropped int
}

// NewStream creates a stream with the given capacity (0 uses the default).
func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	return &Stream{
		notify: make(chan struct{}, 1),
		max:    capacity,
	}
}

// Emit implements ProgressSink. It never blocks: at capacity it sheds the
// oldest droppable event, or grows the queue when only critical events
// remain. Emitting a terminal event closes the stream after delivery.
func (s *Stream) Emit(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.pending) >= s.max {
		if i := s.oldestDroppable(); i >= 0 {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.dropped++
		} else if !ev.Critical() {
			// Queue is all critical events; shed the newcomer instead.
			s.dropped++
			s.mu.Unlock()
			return
		}
	}
	s.pending = append(s.pending, ev)
	if ev.Terminal() {
		s.closed = true
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next returns the next pending event, blocking until one is available, the
// context is cancelled, or the stream is closed and drained.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return ev, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return Event{}, ErrStreamClosed
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close marks the stream closed without a terminal event (e.g. the engine
// failed before the session produced one). Pending events remain readable.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Dropped returns how many events were shed due to backpressure.
func (s *Stream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// oldestDroppable returns the index of the oldest non-critical pending
// event, or -1 when every pending event is critical.
func (s *Stream) oldestDroppable() int {
	for i, ev := range s.pending {
		if !ev.Critical() {
			return i
		}
	}
	return -1
}
