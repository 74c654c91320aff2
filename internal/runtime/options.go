package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/callscope/internal/config"
	"github.com/tjfontaine/callscope/internal/storage"
	"github.com/tjfontaine/callscope/internal/storage/file"
	"github.com/tjfontaine/callscope/internal/storage/memory"
	"github.com/tjfontaine/callscope/internal/storage/redis"
	"github.com/tjfontaine/callscope/internal/storage/sqlite"
)

// Option is a functional option for configuring a Tracer.
type Option func(*Tracer) error

// WithConfigFile names the YAML config file loaded at Start. CALLSCOPE_
// environment variables still overlay it.
func WithConfigFile(path string) Option {
	return func(t *Tracer) error {
		t.configPath = path
		return nil
	}
}

// WithConfig supplies a fully built config, skipping the file/env load.
// For embedded hosts that manage their own configuration.
func WithConfig(cfg *config.Config) Option {
	return func(t *Tracer) error {
		t.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracer) error {
		t.logger = logger
		return nil
	}
}

// WithApp names the traced application in recording metadata, overriding
// config.
func WithApp(name string) Option {
	return func(t *Tracer) error {
		t.app = name
		return nil
	}
}

// WithStore sets a custom recording store.
func WithStore(store storage.RecordingStore) Option {
	return func(t *Tracer) error {
		t.store = store
		return nil
	}
}

// WithMemoryStore keeps recordings in process memory. They are lost on exit.
func WithMemoryStore() Option {
	return func(t *Tracer) error {
		t.store = memory.New()
		return nil
	}
}

// WithSQLite stores recordings in a SQLite database at the given path
// (default for single-instance deployments that need recordings to survive
// restarts).
func WithSQLite(path string) Option {
	return func(t *Tracer) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		t.store = store
		return nil
	}
}

// WithRedis stores recordings in Redis at the given address. Connection
// details beyond the address come from the config file.
func WithRedis(addr string) Option {
	return func(t *Tracer) error {
		store, err := redis.New(redis.Config{Addr: addr})
		if err != nil {
			return fmt.Errorf("create redis storage: %w", err)
		}
		t.store = store
		return nil
	}
}

// WithFileStore keeps recordings as AppMap files under dir, one file per
// recording.
func WithFileStore(dir string) Option {
	return func(t *Tracer) error {
		store, err := file.New(dir)
		if err != nil {
			return fmt.Errorf("create file storage: %w", err)
		}
		t.store = store
		return nil
	}
}

// WithOutputDir writes every finished recording as an AppMap file under dir,
// in addition to whatever store is configured.
func WithOutputDir(dir string) Option {
	return func(t *Tracer) error {
		t.outputDir = dir
		return nil
	}
}

// WithListenAddr serves the control plane on addr, enabling the server even
// when the config leaves it off.
func WithListenAddr(addr string) Option {
	return func(t *Tracer) error {
		t.addr = addr
		return nil
	}
}

// WithUploader pushes finished recordings to a remote collector.
func WithUploader(baseURL, apiKey string) Option {
	return func(t *Tracer) error {
		t.uploadBaseURL = baseURL
		t.uploadAPIKey = apiKey
		return nil
	}
}

// WithSchedule opens a recording window of the given length at each cron
// tick, overriding the config schedule. The spec uses the standard five-field
// cron syntax; @every descriptors work too.
func WithSchedule(cronSpec string, window time.Duration) Option {
	return func(t *Tracer) error {
		t.cronSpec = cronSpec
		t.cronWindow = window
		return nil
	}
}

// WithClock sets the time source used to name scheduled captures. Mostly for
// tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) error {
		if now == nil {
			return fmt.Errorf("clock function must not be nil")
		}
		t.now = now
		return nil
	}
}
