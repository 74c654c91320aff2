package instrument

import (
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"

	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/telemetry"
)

// eventID is the producer-side identifier sequence. Identifiers are assigned
// before routing and never reused, so they stay strictly increasing even for
// events the router later drops.
var eventID atomic.Uint64

func nextEventID() uint64 {
	return eventID.Add(1)
}

// Template stamps out events for one instrumented function.
type Template struct {
	reg          *Registry
	info         FuncInfo
	definedClass string
}

// Info returns the registered function identity.
func (t *Template) Info() FuncInfo {
	return t.info
}

// Enter emits the call event for one invocation and returns the frame to
// close on exit. A throttled invocation yields an inert frame whose Exit does
// nothing, so the per-goroutine call stack never sees half a pair.
func (t *Template) Enter(params ...domain.Param) *Frame {
	if !t.reg.allow() {
		telemetry.DropEvent(telemetry.DropThrottled)
		return &Frame{}
	}

	e := &domain.Event{
		ID:           nextEventID(),
		Kind:         domain.KindCall,
		ThreadID:     goid.Get(),
		Timestamp:    time.Now(),
		DefinedClass: t.definedClass,
		MethodID:     t.info.Function,
		Static:       t.info.Static,
		Path:         t.info.Path,
		Lineno:       t.info.Line,
		Params:       params,
	}
	if err := t.reg.rec.Add(e); err != nil {
		t.reg.logger.Warn("discarding call event",
			"function", t.info.Function,
			"error", err,
		)
		return &Frame{}
	}
	return &Frame{reg: t.reg}
}

// Frame is one open invocation. Exactly one Exit takes effect; later calls
// are no-ops.
type Frame struct {
	reg *Registry
}

// Exit emits the return event matching the frame's call. The return value
// and error are both optional; a nil ret records no return value.
func (f *Frame) Exit(ret any, callErr error) {
	if f == nil || f.reg == nil {
		return
	}
	reg := f.reg
	f.reg = nil

	e := &domain.Event{
		ID:        nextEventID(),
		Kind:      domain.KindReturn,
		ThreadID:  goid.Get(),
		Timestamp: time.Now(),
	}
	if ret != nil {
		p := domain.CaptureParam("", ret)
		e.Return = &p
	}
	if callErr != nil {
		e.Error = callErr.Error()
	}
	if err := reg.rec.Add(e); err != nil {
		reg.logger.Warn("discarding return event", "error", err)
	}
}
