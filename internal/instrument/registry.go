// Package instrument builds the call and return events emitted by traced
// functions. An instrumentation site registers its function once and receives
// a Template; each invocation then opens a Frame on entry and closes it on
// exit. Frames shed by the throttle are inert, so a rate-limited entry never
// leaves an unmatched return behind.
package instrument

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/tjfontaine/callscope/internal/classmap"
	"github.com/tjfontaine/callscope/internal/record"
)

// FuncInfo identifies an instrumented function.
type FuncInfo struct {
	Package  string
	Class    string
	Function string
	Static   bool
	Path     string
	Line     int
}

func (f FuncInfo) key() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{f.Package, f.Class, f.Function} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// definedClass is the owner recorded on emitted events: the package-qualified
// class for methods, the bare package for functions.
func (f FuncInfo) definedClass() string {
	switch {
	case f.Class == "":
		return f.Package
	case f.Package == "":
		return f.Class
	default:
		return f.Package + "." + f.Class
	}
}

// Registry hands out event templates for instrumented functions. A template
// is created once per function and reused by every invocation.
type Registry struct {
	rec    *record.Recorder
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]*Template

	limiter atomic.Pointer[rate.Limiter]
}

func NewRegistry(rec *record.Recorder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rec:       rec,
		logger:    logger,
		templates: make(map[string]*Template),
	}
}

// SetThrottle caps event production at eventsPerSecond with the given burst.
// A rate of zero or less removes the cap. Safe to call while events flow.
func (g *Registry) SetThrottle(eventsPerSecond float64, burst int) {
	if eventsPerSecond <= 0 {
		g.limiter.Store(nil)
		return
	}
	if burst < 1 {
		burst = 1
	}
	g.limiter.Store(rate.NewLimiter(rate.Limit(eventsPerSecond), burst))
}

// Register returns the event template for the given function, creating it on
// first use. Registration also records the function in the shared code-object
// catalogue, so every instrumented function appears in the class map even if
// it is never invoked.
func (g *Registry) Register(info FuncInfo) *Template {
	key := info.key()

	g.mu.RLock()
	tmpl, ok := g.templates[key]
	g.mu.RUnlock()
	if ok {
		return tmpl
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if tmpl, ok := g.templates[key]; ok {
		return tmpl
	}

	g.rec.RegisterCodeObject(classmap.Ref{
		Package:  info.Package,
		Class:    info.Class,
		Function: info.Function,
		Static:   info.Static,
		Path:     info.Path,
		Line:     info.Line,
	})

	tmpl = &Template{reg: g, info: info, definedClass: info.definedClass()}
	g.templates[key] = tmpl
	return tmpl
}

// Size reports how many functions have been registered.
func (g *Registry) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.templates)
}

func (g *Registry) allow() bool {
	lim := g.limiter.Load()
	if lim == nil {
		return true
	}
	return lim.Allow()
}
