package server

import (
	"net/http"

	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/instrument"
	"github.com/tjfontaine/callscope/internal/record"
)

// RecordingMiddleware captures HTTP requests handled while a session is
// active as ordinary call/return pairs: the call carries the method and path
// as parameters, the return carries the response status. With no active
// session requests pass through untouched.
//
// Host applications mount this around the routes they want traced; the
// control-plane endpoints themselves are never wrapped, so stopping a
// session does not record the stop request.
func RecordingMiddleware(rec *record.Recorder, hooks *instrument.Registry) func(http.Handler) http.Handler {
	tmpl := hooks.Register(instrument.FuncInfo{
		Package:  "net/http",
		Class:    "Handler",
		Function: "ServeHTTP",
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rec.Active() {
				next.ServeHTTP(w, r)
				return
			}

			fr := tmpl.Enter(
				domain.CaptureParam("method", r.Method),
				domain.CaptureParam("path", r.URL.Path),
			)
			sw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				fr.Exit(sw.statusCode, nil)
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
