package record

import (
	"sync"

	"github.com/tjfontaine/callscope/internal/core/domain"
)

// sessionGuard is the exclusive holder of at most one live session. All
// transitions between empty and occupied happen under one mutex, so
// concurrent starts cannot both succeed and a stop removes the session
// atomically before finalization begins.
type sessionGuard struct {
	mu      sync.Mutex
	session *Session
}

// set installs s as the held session, failing if one is already held.
func (g *sessionGuard) set(s *Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session != nil {
		return domain.ErrSessionActive
	}
	g.session = s
	return nil
}

// get returns the held session for event forwarding.
func (g *sessionGuard) get() (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session == nil {
		return nil, domain.ErrNoSession
	}
	return g.session, nil
}

// release removes and returns the held session. Subsequent calls observe an
// empty slot even while the caller is still finalizing the removed session.
func (g *sessionGuard) release() (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session == nil {
		return nil, domain.ErrNoSession
	}
	s := g.session
	g.session = nil
	return s, nil
}

// exists is the non-blocking activity check used on the event hot path.
func (g *sessionGuard) exists() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session != nil
}
