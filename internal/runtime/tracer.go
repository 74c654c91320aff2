// Package runtime assembles the tracer from its parts and manages their
// lifecycle: configuration, telemetry, the recording engine, storage, output
// sinks, the control-plane server, and scheduled capture windows.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tjfontaine/callscope/internal/appmap"
	"github.com/tjfontaine/callscope/internal/config"
	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/core/ports"
	"github.com/tjfontaine/callscope/internal/instrument"
	"github.com/tjfontaine/callscope/internal/record"
	"github.com/tjfontaine/callscope/internal/server"
	"github.com/tjfontaine/callscope/internal/storage"
	"github.com/tjfontaine/callscope/internal/storage/file"
	"github.com/tjfontaine/callscope/internal/storage/memory"
	"github.com/tjfontaine/callscope/internal/storage/redis"
	"github.com/tjfontaine/callscope/internal/storage/sqlite"
	"github.com/tjfontaine/callscope/internal/telemetry"
	"github.com/tjfontaine/callscope/internal/upload"
)

// flushTimeout bounds persistence of a finished recording when the caller's
// context is already gone (shutdown, scheduler windows).
const flushTimeout = 5 * time.Second

// Tracer is the main entry point for running the tracer. It manages
// configuration, the recording engine, storage, and the control-plane server
// lifecycle. Tracer can be embedded in a host application or run standalone.
type Tracer struct {
	// Dependencies (injected via options)
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	store      storage.RecordingStore

	// Option overrides resolved against config at Start
	app           string
	addr          string
	outputDir     string
	uploadBaseURL string
	uploadAPIKey  string
	cronSpec      string
	cronWindow    time.Duration
	now           func() time.Time

	// Internal state
	recorder  *record.Recorder
	hooks     *instrument.Registry
	writer    *appmap.Writer
	uploader  *upload.Client
	sink      ports.Sink
	server    *server.Server
	scheduler *scheduler

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
}

// New creates a new Tracer with the given options. The zero-option form uses
// config.yaml (if present), CALLSCOPE_ environment overrides, and in-memory
// storage.
func New(opts ...Option) (*Tracer, error) {
	t := &Tracer{
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	return t, nil
}

// Start initializes the tracer's components and starts the control-plane
// server and scheduler when configured.
func (t *Tracer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return errors.New("tracer already started")
	}

	t.ctx, t.cancel = context.WithCancel(ctx)

	cfg := t.cfg
	if cfg == nil {
		var err error
		cfg, err = config.Load(t.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		t.cfg = cfg
	}

	telemetry.InitMetrics()

	t.recorder = record.NewRecorder(t.logger)
	t.hooks = instrument.NewRegistry(t.recorder, t.logger)
	if cfg.Recording.EventsPerSecond > 0 {
		t.hooks.SetThrottle(cfg.Recording.EventsPerSecond, cfg.Recording.Burst)
	}

	if t.store == nil {
		store, err := openStore(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		t.store = store
	}

	outputDir := t.outputDir
	if outputDir == "" {
		outputDir = cfg.Output.Dir
	}
	if outputDir != "" {
		t.writer = appmap.NewWriter(outputDir, t.logger)
	}

	if t.uploadBaseURL == "" && cfg.Upload.Enabled {
		t.uploadBaseURL = cfg.Upload.BaseURL
		t.uploadAPIKey = cfg.Upload.APIKey
	}
	if t.uploadBaseURL != "" {
		t.uploader = upload.NewClient(t.uploadAPIKey,
			upload.WithBaseURL(t.uploadBaseURL),
			upload.WithLogger(t.logger),
		)
	}

	t.sink = t.buildSink()

	// The router is always built so hosts can mount Handler; a listener only
	// starts when asked for.
	t.server = server.New(server.Options{
		Addr:              t.listenAddr(cfg),
		App:               t.appName(cfg),
		Recorder:          t.recorder,
		Hooks:             t.hooks,
		Store:             t.store,
		Sink:              t.sink,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		Logger:            t.logger,
	})
	if cfg.Server.Enabled || t.addr != "" {
		t.server.Serve()
	}

	if err := t.startScheduler(cfg); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	t.started = true
	t.logger.Info("tracer started",
		slog.String("app", t.appName(cfg)),
		slog.String("storage", cfg.Storage.Type),
		slog.Bool("server", cfg.Server.Enabled || t.addr != ""),
		slog.Bool("scheduler", t.scheduler != nil))

	return nil
}

// Shutdown gracefully stops the tracer: the scheduler first, then any active
// session (stopped and flushed so its events are not lost), the control-plane
// server, and finally storage.
func (t *Tracer) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.Info("shutting down tracer")

	if t.cancel != nil {
		t.cancel()
	}

	if t.scheduler != nil {
		t.scheduler.stop()
	}

	if t.recorder != nil && t.recorder.Active() {
		rec, err := t.recorder.Stop()
		if err == nil {
			t.flush(ctx, rec)
		}
	}

	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil {
			t.logger.Error("failed to shutdown control plane", slog.String("error", err.Error()))
			return err
		}
	}

	if t.store != nil {
		if err := t.store.Close(); err != nil {
			t.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	t.logger.Info("tracer shutdown complete")
	return nil
}

// Recorder exposes the session engine for direct control.
func (t *Tracer) Recorder() *record.Recorder {
	return t.recorder
}

// Hooks exposes the instrumentation registry for declaring traced functions.
func (t *Tracer) Hooks() *instrument.Registry {
	return t.hooks
}

// Handler returns the control-plane router for mounting into a host
// application's mux. Only valid after Start.
func (t *Tracer) Handler() http.Handler {
	if t.server == nil {
		return nil
	}
	return t.server.Router
}

// Record runs fn inside its own recording session and returns the capture
// without persisting it.
func (t *Tracer) Record(ctx context.Context, meta domain.Metadata, fn func(context.Context) error) (*domain.Recording, error) {
	return t.recorder.Record(ctx, meta, fn)
}

// RecordNamed runs fn inside a session named after the scenario and flushes
// the capture through the configured sinks. An error from fn propagates and
// discards the capture, matching Record.
func (t *Tracer) RecordNamed(ctx context.Context, name string, fn func(context.Context) error) (*domain.Recording, error) {
	hostname, _ := os.Hostname()
	meta := domain.Metadata{
		Name:         name,
		App:          t.appName(t.cfg),
		RecorderName: "block recording",
		RecorderType: domain.RecorderTypeBlock,
		Hostname:     hostname,
	}

	rec, err := t.recorder.Record(ctx, meta, fn)
	if rec != nil {
		t.flush(ctx, rec)
	}
	return rec, err
}

// flush hands a finished recording to the sink, detaching from the caller's
// context when it is already done.
func (t *Tracer) flush(ctx context.Context, rec *domain.Recording) {
	if t.sink == nil {
		return
	}

	if ctx == nil || ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
	}

	if err := t.sink.Flush(ctx, rec); err != nil {
		t.logger.Error("failed to flush recording",
			slog.String("recording_id", rec.ID),
			slog.String("error", err.Error()))
	}
}

// buildSink assembles the sink chain from whatever outputs are configured.
func (t *Tracer) buildSink() ports.Sink {
	var sinks []ports.Sink
	if t.store != nil {
		sinks = append(sinks, &storeSink{store: t.store, backend: t.storageBackend()})
	}
	if t.writer != nil {
		sinks = append(sinks, &writerSink{writer: t.writer})
	}
	if t.uploader != nil {
		sinks = append(sinks, &uploadSink{client: t.uploader})
	}

	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return &multiSink{sinks: sinks}
	}
}

func (t *Tracer) startScheduler(cfg *config.Config) error {
	spec := t.cronSpec
	window := t.cronWindow
	if spec == "" && cfg.Schedule.Enabled {
		spec = cfg.Schedule.Cron
		window = cfg.Schedule.WindowDuration()
	}
	if spec == "" {
		return nil
	}
	if window <= 0 {
		window = 30 * time.Second
	}

	sched, err := newScheduler(schedulerConfig{
		recorder: t.recorder,
		flush:    t.flush,
		spec:     spec,
		window:   window,
		app:      t.appName(cfg),
		now:      t.now,
		logger:   t.logger,
		ctx:      t.ctx,
	})
	if err != nil {
		return err
	}

	t.scheduler = sched
	t.scheduler.start()
	return nil
}

func (t *Tracer) appName(cfg *config.Config) string {
	if t.app != "" {
		return t.app
	}
	if cfg != nil && cfg.App.Name != "" {
		return cfg.App.Name
	}
	return filepath.Base(os.Args[0])
}

func (t *Tracer) listenAddr(cfg *config.Config) string {
	if t.addr != "" {
		return t.addr
	}
	return cfg.Server.Addr
}

func (t *Tracer) storageBackend() string {
	if t.cfg != nil && t.cfg.Storage.Type != "" {
		return t.cfg.Storage.Type
	}
	return "store"
}

// openStore builds the recording store named by config. Type "none" (and an
// explicit empty type) disables persistence.
func openStore(cfg config.StorageConfig) (storage.RecordingStore, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.New(), nil
	case "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = "callscope.db"
		}
		return sqlite.New(path)
	case "redis":
		return redis.New(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTLDuration(),
		})
	case "file":
		dir := cfg.File.Dir
		if dir == "" {
			dir = "tmp/recordings"
		}
		return file.New(dir)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
