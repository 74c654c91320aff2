package appmap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tjfontaine/callscope/internal/core/domain"
)

// Writer persists recordings as AppMap files in a directory. Files appear
// atomically: content is written to a temp file first and renamed into
// place, so a watcher never observes a partial document.
type Writer struct {
	dir    string
	logger *slog.Logger
}

func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, logger: logger}
}

// Write serializes the recording into the writer's directory and returns the
// file path. The recording name determines the file name; unnamed recordings
// fall back to their id.
func (w *Writer) Write(rec *domain.Recording) (string, error) {
	data, err := Encode(rec)
	if err != nil {
		return "", fmt.Errorf("encoding recording %s: %w", rec.ID, err)
	}

	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	name := rec.Metadata.Name
	if name == "" {
		name = rec.ID
	}
	path := filepath.Join(w.dir, FileName(name))

	tmp, err := os.CreateTemp(w.dir, ".appmap-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write recording: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish recording: %w", err)
	}

	w.logger.Debug("wrote appmap file",
		"path", path,
		"events", len(rec.Events),
	)
	return path, nil
}
