package domain

import "errors"

// Lifecycle and input errors surfaced by the recording core. Callers match
// with errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrSessionActive is returned by Start when a recording session is
	// already in progress. At most one session exists process-wide.
	ErrSessionActive = errors.New("an active recording session already exists")

	// ErrNoSession is returned by Stop and Checkpoint when no recording
	// session is in progress.
	ErrNoSession = errors.New("there is no active recording session")

	// ErrSessionClosed is returned when an event reaches a session that has
	// already been stopped. Under correct guard usage the session reference
	// is unreachable by then, so this signals a routing race, not caller
	// misuse; the router absorbs it as a silent drop.
	ErrSessionClosed = errors.New("recording session is already stopped")

	// ErrInvalidKind is returned for an event whose kind is neither call nor
	// return. This is a programming error in the producer.
	ErrInvalidKind = errors.New("invalid event kind")
)
