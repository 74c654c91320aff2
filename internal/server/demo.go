package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/instrument"
)

// demoWorkload serves instrumented toy endpoints so a running daemon can
// produce real traces without a host application. The fib endpoint yields
// deeply nested call trees; work yields a flat sequence of timed calls.
type demoWorkload struct {
	fib  *instrument.Template
	step *instrument.Template
}

func newDemoWorkload(hooks *instrument.Registry) *demoWorkload {
	return &demoWorkload{
		fib: hooks.Register(instrument.FuncInfo{
			Package:  "callscope/demo",
			Function: "Fib",
			Static:   true,
			Path:     "internal/server/demo.go",
			Line:     40,
		}),
		step: hooks.Register(instrument.FuncInfo{
			Package:  "callscope/demo",
			Function: "Step",
			Static:   true,
			Path:     "internal/server/demo.go",
			Line:     50,
		}),
	}
}

func (d *demoWorkload) runFib(n int) int {
	fr := d.fib.Enter(domain.CaptureParam("n", n))
	var out int
	defer func() { fr.Exit(out, nil) }()

	if n < 2 {
		out = n
		return out
	}
	out = d.runFib(n-1) + d.runFib(n-2)
	return out
}

func (d *demoWorkload) runStep(i int, pause time.Duration) {
	fr := d.step.Enter(domain.CaptureParam("i", i))
	defer fr.Exit(nil, nil)
	time.Sleep(pause)
}

func (d *demoWorkload) handleFib(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 10)
	if n > 25 {
		// 2^n events; cap the tree at something a session can hold.
		n = 25
	}
	writeJSON(w, map[string]int{"n": n, "fib": d.runFib(n)})
}

func (d *demoWorkload) handleWork(w http.ResponseWriter, r *http.Request) {
	steps := queryInt(r, "steps", 5)
	if steps > 100 {
		steps = 100
	}
	pause := time.Duration(queryInt(r, "pause_ms", 1)) * time.Millisecond

	for i := 0; i < steps; i++ {
		d.runStep(i, pause)
	}
	writeJSON(w, map[string]int{"steps": steps})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
