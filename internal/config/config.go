// Package config loads tracer configuration from an optional YAML file with
// CALLSCOPE_ environment variables layered on top. Nested keys use a double
// underscore in the environment: CALLSCOPE_STORAGE__TYPE=redis sets
// storage.type.
package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Recording RecordingConfig `koanf:"recording"`
	Storage   StorageConfig   `koanf:"storage"`
	Output    OutputConfig    `koanf:"output"`
	Upload    UploadConfig    `koanf:"upload"`
	Schedule  ScheduleConfig  `koanf:"schedule"`
}

type AppConfig struct {
	Name string `koanf:"name"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

type ServerConfig struct {
	Enabled           bool    `koanf:"enabled"`
	Addr              string  `koanf:"addr"`
	RequestsPerSecond float64 `koanf:"requests_per_second"` // control-plane rate limit
	Burst             int     `koanf:"burst"`
}

type RecordingConfig struct {
	EventsPerSecond float64 `koanf:"events_per_second"` // 0 = unlimited
	Burst           int     `koanf:"burst"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, redis, file, none
	SQLite SQLiteConfig `koanf:"sqlite"`
	Redis  RedisConfig  `koanf:"redis"`
	File   FileConfig   `koanf:"file"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
	TTL      string `koanf:"ttl"` // Duration string like "24h", empty = keep forever
}

type FileConfig struct {
	Dir string `koanf:"dir"`
}

type OutputConfig struct {
	Dir string `koanf:"dir"` // where finished .appmap.json files are written
}

type UploadConfig struct {
	Enabled     bool   `koanf:"enabled"`
	BaseURL     string `koanf:"base_url"`
	APIKey      string `koanf:"api_key"`
	Concurrency int    `koanf:"concurrency"`
}

type ScheduleConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Cron     string `koanf:"cron"`     // cron expression opening a capture window
	Duration string `koanf:"duration"` // window length, duration string like "30s"
}

// TTLDuration parses the Redis TTL, returning zero for empty or invalid
// values.
func (r RedisConfig) TTLDuration() time.Duration {
	if r.TTL == "" {
		return 0
	}
	d, err := time.ParseDuration(r.TTL)
	if err != nil {
		return 0
	}
	return d
}

// WindowDuration parses the capture-window length, defaulting to 30 seconds.
func (s ScheduleConfig) WindowDuration() time.Duration {
	if s.Duration == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(s.Duration)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the named YAML file, if it exists, then overlays CALLSCOPE_
// environment variables and fills in defaults. An empty path means
// "config.yaml" in the working directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	k := koanf.New(".")

	// Try to load from the config file first
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("CALLSCOPE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CALLSCOPE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("log.level") {
		k.Set("log.level", "info")
	}
	if !k.Exists("server.addr") {
		k.Set("server.addr", ":8080")
	}
	if !k.Exists("server.requests_per_second") {
		k.Set("server.requests_per_second", 50)
	}
	if !k.Exists("server.burst") {
		k.Set("server.burst", 100)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "memory")
	}
	if !k.Exists("output.dir") {
		k.Set("output.dir", "tmp/appmap")
	}
	if !k.Exists("upload.concurrency") {
		k.Set("upload.concurrency", 4)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in the collector API key
	cfg.Upload.APIKey = substituteEnvVars(cfg.Upload.APIKey)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
