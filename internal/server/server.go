// Package server exposes the tracer's remote-recording control plane over
// HTTP: session start/stop/checkpoint, stored-recording access, health and
// metrics, and the middleware that captures traffic into active sessions.
// The router can run standalone or be mounted into a host application.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/callscope/internal/appmap"
	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/core/ports"
	"github.com/tjfontaine/callscope/internal/instrument"
	"github.com/tjfontaine/callscope/internal/record"
	"github.com/tjfontaine/callscope/internal/storage"
	"github.com/tjfontaine/callscope/internal/telemetry"
)

// persistTimeout bounds best-effort persistence detached from the request.
const persistTimeout = 5 * time.Second

// Options configures a control-plane server.
type Options struct {
	// Addr is the listen address for Serve.
	Addr string

	// App names the traced application in recording metadata.
	App string

	// Recorder is the session engine the endpoints drive. Required.
	Recorder *record.Recorder

	// Hooks is the instrumentation registry backing the demo workload and
	// the request-capture middleware. Nil disables the demo routes.
	Hooks *instrument.Registry

	// Store backs the /recordings endpoints. Nil disables them.
	Store storage.RecordingStore

	// Sink receives the finished recording when a remote session stops.
	// Nil means the stop response body is the only copy.
	Sink ports.Sink

	// RequestsPerSecond and Burst bound the checkpoint/stop endpoints.
	// Zero disables the limit.
	RequestsPerSecond float64
	Burst             int

	Logger *slog.Logger
}

// Server is the remote-recording control plane.
type Server struct {
	Router *chi.Mux

	addr     string
	app      string
	recorder *record.Recorder
	hooks    *instrument.Registry
	store    storage.RecordingStore
	sink     ports.Sink
	logger   *slog.Logger

	srv *http.Server
}

// New builds the control-plane router.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Router:   chi.NewRouter(),
		addr:     opts.Addr,
		app:      opts.App,
		recorder: opts.Recorder,
		hooks:    opts.Hooks,
		store:    opts.Store,
		sink:     opts.Sink,
		logger:   logger,
	}

	s.Router.Use(RequestIDMiddleware)
	s.Router.Use(LoggingMiddleware(logger))
	s.Router.Use(TimeoutMiddleware(30 * time.Second))
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "callscope-control")
	})

	s.routes(opts)
	return s
}

func (s *Server) routes(opts Options) {
	// Checkpoint and stop materialize full recordings; a shared bucket keeps
	// a misbehaving poller from snapshotting in a loop.
	limited := RateLimitMiddleware(opts.RequestsPerSecond, opts.Burst)

	s.Router.Route("/_appmap/record", func(r chi.Router) {
		r.Get("/", s.handleRecordStatus)
		r.Post("/start", s.handleRecordStart)
		r.With(limited).Delete("/stop", s.handleRecordStop)
		r.With(limited).Post("/checkpoint", s.handleRecordCheckpoint)
	})

	if s.store != nil {
		s.Router.Route("/recordings", func(r chi.Router) {
			r.Get("/", s.handleListRecordings)
			r.Get("/{id}", s.handleGetRecording)
			r.Delete("/{id}", s.handleDeleteRecording)
		})
	}

	s.Router.Get("/healthz", s.handleHealth)
	s.Router.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler())

	if s.hooks != nil {
		demo := newDemoWorkload(s.hooks)
		s.Router.Group(func(r chi.Router) {
			r.Use(RecordingMiddleware(s.recorder, s.hooks))
			r.Get("/demo/fib", demo.handleFib)
			r.Get("/demo/work", demo.handleWork)
		})
	}
}

// ServeHTTP makes the server mountable into a host application's router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Serve starts listening on the configured address in the background.
func (s *Server) Serve() {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		s.logger.Info("control plane listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control plane server error", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown gracefully stops the listener started by Serve.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type statusResponse struct {
	Enabled bool `json:"enabled"`
}

// startRequest carries optional metadata overrides for a remote session.
type startRequest struct {
	Name   string   `json:"name,omitempty"`
	App    string   `json:"app,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

func (s *Server) handleRecordStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{Enabled: s.recorder.Active()})
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an empty one means no overrides.
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		AddError(r.Context(), err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	hostname, _ := os.Hostname()
	meta := domain.Metadata{
		Name:         req.Name,
		App:          s.app,
		RecorderName: "remote recording",
		RecorderType: domain.RecorderTypeRemote,
		Hostname:     hostname,
		Labels:       req.Labels,
	}
	if req.App != "" {
		meta.App = req.App
	}

	if err := s.recorder.Start(meta); err != nil {
		AddError(r.Context(), err)
		if errors.Is(err, domain.ErrSessionActive) {
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recorder.Stop()
	if err != nil {
		AddError(r.Context(), err)
		if errors.Is(err, domain.ErrNoSession) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.persist(r.Context(), rec)
	s.writeAppMap(w, r, rec)
}

func (s *Server) handleRecordCheckpoint(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recorder.Checkpoint()
	if err != nil {
		AddError(r.Context(), err)
		if errors.Is(err, domain.ErrNoSession) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeAppMap(w, r, rec)
}

// persist hands a finished recording to the sink on a context detached from
// the request, so a client disconnect cannot drop the recording.
func (s *Server) persist(ctx context.Context, rec *domain.Recording) {
	if s.sink == nil {
		return
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.sink.Flush(persistCtx, rec); err != nil {
		s.logger.Error("failed to persist recording",
			slog.String("request_id", GetRequestID(ctx)),
			slog.String("recording_id", rec.ID),
			slog.String("sink", s.sink.Name()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) writeAppMap(w http.ResponseWriter, r *http.Request, rec *domain.Recording) {
	data, err := appmap.Encode(rec)
	if err != nil {
		AddError(r.Context(), err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	AddLogField(r.Context(), "recording_id", rec.ID)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

type recordingListResponse struct {
	Recordings []*storage.RecordingSummary `json:"recordings"`
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListRecordings(r.Context(), parseListOptions(r))
	if err != nil {
		AddError(r.Context(), err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summaries == nil {
		summaries = []*storage.RecordingSummary{}
	}
	writeJSON(w, recordingListResponse{Recordings: summaries})
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetRecording(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		AddError(r.Context(), err)
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeAppMap(w, r, rec)
}

func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRecording(r.Context(), chi.URLParam(r, "id")); err != nil {
		AddError(r.Context(), err)
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func parseListOptions(r *http.Request) storage.ListOptions {
	var opts storage.ListOptions
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		opts.Offset = n
	}
	return opts
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}
