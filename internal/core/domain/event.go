// Package domain provides the canonical data model for the tracer:
// events, recordings, code objects, and the error conditions of the
// recording lifecycle.
package domain

import (
	"fmt"
	"time"
)

// Kind identifies whether an event marks entry into or exit from a function.
type Kind string

const (
	KindCall   Kind = "call"
	KindReturn Kind = "return"
)

// Param is one captured argument or return value. The raw value is held
// until the owning event is frozen, at which point it is rendered to its
// recorded string form and released.
type Param struct {
	Name  string `json:"name,omitempty"`
	Class string `json:"class,omitempty"`
	Value string `json:"value"`

	raw      any
	captured bool
}

// CaptureParam snapshots a live value for later rendering. The value's type
// is recorded immediately; its display form is deferred until Freeze so that
// capture stays cheap on the hot path.
func CaptureParam(name string, v any) Param {
	return Param{
		Name:     name,
		Class:    fmt.Sprintf("%T", v),
		raw:      v,
		captured: true,
	}
}

func (p *Param) render() {
	if !p.captured {
		return
	}
	p.Value = fmt.Sprint(p.raw)
	p.raw = nil
	p.captured = false
}

// Event is one call or return occurrence in the traced program.
//
// An Event is created by the instrumentation layer, mutated only by the
// Recorder during correlation, then frozen and handed to the active session.
// Once frozen no field may change.
type Event struct {
	ID        uint64    `json:"id"`
	Kind      Kind      `json:"kind"`
	ThreadID  int64     `json:"thread_id"`
	Timestamp time.Time `json:"timestamp"`

	// ParentID is the identifier of the correlated call. It is populated
	// exclusively by the Recorder when a return event is matched, never by
	// the producer.
	ParentID uint64 `json:"parent_id,omitempty"`

	// Elapsed is the wall time between a return event and its matched call,
	// stamped during correlation.
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// Code identity, populated on call events.
	DefinedClass string `json:"defined_class,omitempty"`
	MethodID     string `json:"method_id,omitempty"`
	Static       bool   `json:"static,omitempty"`
	Path         string `json:"path,omitempty"`
	Lineno       int    `json:"lineno,omitempty"`

	Params []Param `json:"parameters,omitempty"`

	// Return carries the captured return value on return events.
	Return *Param `json:"return_value,omitempty"`

	// Error carries the error message when the traced call failed.
	Error string `json:"error,omitempty"`

	frozen bool
}

// Freeze renders all lazily-captured values and makes the event immutable.
// Rendering may invoke user String methods, which can themselves be
// instrumented; callers must hold the per-thread re-entrancy guard.
func (e *Event) Freeze() {
	if e.frozen {
		return
	}
	for i := range e.Params {
		e.Params[i].render()
	}
	if e.Return != nil {
		e.Return.render()
	}
	e.frozen = true
}

// Frozen reports whether the event has been made immutable.
func (e *Event) Frozen() bool {
	return e.frozen
}
