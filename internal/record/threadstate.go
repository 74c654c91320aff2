package record

import (
	"github.com/petermattis/goid"

	"github.com/tjfontaine/callscope/internal/core/domain"
)

// threadState is the per-goroutine correlation state. Each goroutine
// exclusively owns its instance, so the fields need no locking; the shared
// index is the Recorder's state map. Instances are created lazily on first
// use and persist across sessions so pending calls can match later returns.
type threadState struct {
	// lastEvent is the last event of any kind routed on this goroutine.
	lastEvent *domain.Event

	// processing is the re-entrancy guard. It is true only for the dynamic
	// extent of one Add call on this goroutine.
	processing bool

	// stack holds pending call events awaiting their return,
	// most-recent-last. It never contains return events.
	stack []*domain.Event
}

func (ts *threadState) push(e *domain.Event) {
	ts.stack = append(ts.stack, e)
}

func (ts *threadState) pop() *domain.Event {
	if len(ts.stack) == 0 {
		return nil
	}
	e := ts.stack[len(ts.stack)-1]
	ts.stack = ts.stack[:len(ts.stack)-1]
	return e
}

func (ts *threadState) peek() *domain.Event {
	if len(ts.stack) == 0 {
		return nil
	}
	return ts.stack[len(ts.stack)-1]
}

// state returns the calling goroutine's correlation state, creating it on
// first use.
func (r *Recorder) state() *threadState {
	id := goid.Get()
	if v, ok := r.threads.Load(id); ok {
		return v.(*threadState)
	}
	v, _ := r.threads.LoadOrStore(id, &threadState{})
	return v.(*threadState)
}
