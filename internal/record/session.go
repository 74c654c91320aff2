package record

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/callscope/internal/core/domain"
)

// Session is the live, mutable accumulation of correlated events between
// start and stop. It is owned by the session guard while live; ownership of
// the Recordings it produces transfers to the caller.
type Session struct {
	mu     sync.Mutex
	id     string
	meta   domain.Metadata
	events []*domain.Event
	closed bool
}

func newSession(meta domain.Metadata) *Session {
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now()
	}
	return &Session{
		id:   "ses_" + uuid.New().String(),
		meta: meta,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// add appends a correlated event in arrival order. Events reaching a stopped
// session are rejected; the router absorbs that as a silent drop.
func (s *Session) add(e *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}
	s.events = append(s.events, e)
	return nil
}

// len reports the number of accumulated events.
func (s *Session) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// checkpoint produces a Recording of the events accumulated so far without
// ending the session. The event slice is copied, so later adds never show
// through a checkpoint.
func (s *Session) checkpoint(classMap []*domain.CodeObject) *domain.Recording {
	return s.snapshot(classMap)
}

// stop is the terminal transition: it closes the session and returns the
// final Recording.
func (s *Session) stop(classMap []*domain.CodeObject) (*domain.Recording, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	return s.snapshot(classMap), nil
}

func (s *Session) snapshot(classMap []*domain.CodeObject) *domain.Recording {
	s.mu.Lock()
	events := make([]*domain.Event, len(s.events))
	copy(events, s.events)
	s.mu.Unlock()

	now := time.Now()
	meta := s.meta
	meta.FinishedAt = now

	return &domain.Recording{
		ID:        "rec_" + uuid.New().String(),
		Metadata:  meta,
		Events:    events,
		ClassMap:  classMap,
		CreatedAt: now,
	}
}
