// Package record implements the event-routing and session-lifecycle core of
// the tracer: per-goroutine call/return correlation, the re-entrancy guard,
// the exclusive-session state machine, and the recorder facade that ties
// them together.
package record

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tjfontaine/callscope/internal/classmap"
	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/telemetry"
)

// Recorder receives raw call/return events from the instrumentation layer,
// correlates them per goroutine, and forwards them to the active session.
// It is safe for concurrent use from any goroutine at any time, including
// when no session is active.
//
// A Recorder is an explicit context object: construct one per process (or
// per test) and hand it to collaborators rather than reaching for a global.
type Recorder struct {
	logger  *slog.Logger
	tree    *classmap.Tree
	guard   sessionGuard
	threads sync.Map // goroutine id -> *threadState
}

// NewRecorder creates a Recorder with an empty code-object catalogue.
// A nil logger falls back to slog.Default().
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		logger: logger,
		tree:   classmap.NewTree(),
	}
}

// Add is the single entry point for raw events from instrumentation.
//
// With no active session the event is silently dropped; there is no
// buffering. A re-entrant call on the same goroutine (freezing an event can
// run user String methods that are themselves instrumented) is dropped to
// prevent unbounded recursion. Call events are pushed onto the goroutine's
// pending stack; return events pop their matching call and take its id and
// thread id. Only an event kind other than call/return returns an error.
func (r *Recorder) Add(e *domain.Event) error {
	if e == nil {
		return fmt.Errorf("nil event: %w", domain.ErrInvalidKind)
	}

	if !r.guard.exists() {
		telemetry.DropEvent(telemetry.DropNoSession)
		return nil
	}

	ts := r.state()
	if ts.processing {
		telemetry.DropEvent(telemetry.DropReentrant)
		return nil
	}
	ts.processing = true
	defer func() {
		ts.processing = false
	}()

	switch e.Kind {
	case domain.KindCall:
		ts.push(e)

	case domain.KindReturn:
		call := ts.pop()
		if call == nil {
			r.logger.Warn("discarding return event: call stack is empty for this thread",
				slog.Uint64("event_id", e.ID),
				slog.Int64("thread_id", e.ThreadID),
			)
			telemetry.DropEvent(telemetry.DropUnmatchedReturn)
			return nil
		}
		e.ParentID = call.ID
		e.ThreadID = call.ThreadID
		if !call.Timestamp.IsZero() && !e.Timestamp.IsZero() {
			e.Elapsed = e.Timestamp.Sub(call.Timestamp)
		}

	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidKind, e.Kind)
	}

	// Freezing renders captured values and may re-enter Add on this
	// goroutine; the processing flag above is what makes that safe.
	e.Freeze()
	ts.lastEvent = e

	// The session may have been stopped by another goroutine since the
	// initial activity check. Recordings are best-effort snapshots, so the
	// vanished-session case is a silent drop rather than an error.
	s, err := r.guard.get()
	if err != nil {
		telemetry.DropEvent(telemetry.DropSessionVanished)
		return nil
	}
	if err := s.add(e); err != nil {
		telemetry.DropEvent(telemetry.DropSessionVanished)
		return nil
	}
	telemetry.RecordEvent()
	return nil
}

// Start begins a new recording session with the given metadata. It fails
// with ErrSessionActive if a session is already in progress.
func (r *Recorder) Start(meta domain.Metadata) error {
	s := newSession(meta)
	if err := r.guard.set(s); err != nil {
		return err
	}
	telemetry.SessionStarted()
	r.logger.Info("recording session started",
		slog.String("session_id", s.id),
		slog.String("name", meta.Name),
		slog.String("recorder_type", meta.RecorderType),
	)
	return nil
}

// Active reports whether a recording session is in progress.
func (r *Recorder) Active() bool {
	return r.guard.exists()
}

// SessionID returns the active session's identifier, or "" when idle. Callers
// holding an id can tell whether the session they started is still the one in
// progress; like the activity check, the answer can go stale immediately.
func (r *Recorder) SessionID() string {
	s, err := r.guard.get()
	if err != nil {
		return ""
	}
	return s.id
}

// Checkpoint returns a snapshot Recording of the events accumulated so far
// without ending the session.
func (r *Recorder) Checkpoint() (*domain.Recording, error) {
	s, err := r.guard.get()
	if err != nil {
		return nil, err
	}
	rec := s.checkpoint(r.ClassMap())
	r.logger.Info("recording checkpoint taken",
		slog.String("session_id", s.id),
		slog.Int("events", len(rec.Events)),
	)
	return rec, nil
}

// Stop ends the active session and returns the final Recording. The session
// is removed from the guard before finalization, so no new events can reach
// it while it is being stopped.
func (r *Recorder) Stop() (*domain.Recording, error) {
	s, err := r.guard.release()
	if err != nil {
		return nil, err
	}
	rec, err := s.stop(r.ClassMap())
	if err != nil {
		return nil, err
	}
	telemetry.SessionStopped()
	r.logger.Info("recording session stopped",
		slog.String("session_id", s.id),
		slog.String("recording_id", rec.ID),
		slog.Int("events", len(rec.Events)),
	)
	return rec, nil
}

// Record runs fn inside a block recording session and returns the finished
// Recording. The session is always stopped before returning, including when
// fn panics; an error from fn propagates and discards the recording.
func (r *Recorder) Record(ctx context.Context, meta domain.Metadata, fn func(context.Context) error) (rec *domain.Recording, err error) {
	if meta.RecorderType == "" {
		meta.RecorderType = domain.RecorderTypeBlock
	}
	if startErr := r.Start(meta); startErr != nil {
		return nil, startErr
	}
	defer func() {
		stopped, stopErr := r.Stop()
		if err == nil {
			rec, err = stopped, stopErr
		}
	}()
	err = fn(ctx)
	return rec, err
}

// LastEvent returns the most recent event routed on the calling goroutine,
// or nil if none.
func (r *Recorder) LastEvent() *domain.Event {
	return r.state().lastEvent
}

// LastCall returns the pending call event at the top of the calling
// goroutine's stack, or nil if the stack is empty. Instrumentation uses it
// to attach return values to in-flight calls.
func (r *Recorder) LastCall() *domain.Event {
	return r.state().peek()
}

// RegisterCodeObject adds a function to the shared code-object catalogue.
// Safe for concurrent use; registering the same entity twice is idempotent.
func (r *Recorder) RegisterCodeObject(ref classmap.Ref) {
	r.tree.Register(ref)
	telemetry.SetCodeObjects(r.tree.Size())
}

// ClassMap returns a stable snapshot of the code-object catalogue.
func (r *Recorder) ClassMap() []*domain.CodeObject {
	return r.tree.Snapshot()
}

// Reset abandons any active session without producing output and clears all
// per-goroutine state. Intended for test isolation.
func (r *Recorder) Reset() {
	if s, err := r.guard.release(); err == nil {
		_, _ = s.stop(nil)
		telemetry.SessionStopped()
	}
	r.threads.Range(func(k, _ any) bool {
		r.threads.Delete(k)
		return true
	})
}
