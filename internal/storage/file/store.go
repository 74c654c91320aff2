// Package file provides a RecordingStore that keeps each recording as an
// AppMap JSON file in a directory. The files are the interchange format
// itself, so anything written here can be opened directly by AppMap tooling.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tjfontaine/callscope/internal/appmap"
	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/core/ports"
	"github.com/tjfontaine/callscope/internal/storage"
)

// Store is a directory-backed implementation of RecordingStore
type Store struct {
	dir string
}

var _ storage.RecordingStore = (*Store)(nil)

// New creates the store directory if needed and returns the store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// validateID rejects ids that could escape the store directory.
func validateID(id string) error {
	if id == "" {
		return errors.New("recording id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid recording id %q", id)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+appmap.Extension)
}

func (s *Store) SaveRecording(ctx context.Context, rec *domain.Recording) error {
	if err := validateID(rec.ID); err != nil {
		return err
	}

	path := s.path(rec.ID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("recording %s already exists", rec.ID)
	}

	data, err := appmap.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}

	return nil
}

func (s *Store) GetRecording(ctx context.Context, id string) (*domain.Recording, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("recording %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}

	rec, err := appmap.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode recording %s: %w", id, err)
	}

	// The document carries no id or storage timestamp; restore both from
	// the file itself.
	rec.ID = id
	if info, err := os.Stat(s.path(id)); err == nil {
		rec.CreatedAt = info.ModTime()
	}

	return rec, nil
}

func (s *Store) ListRecordings(ctx context.Context, opts storage.ListOptions) ([]*storage.RecordingSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}

	var result []*storage.RecordingSummary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, appmap.Extension) {
			continue
		}
		id := strings.TrimSuffix(name, appmap.Extension)

		rec, err := s.GetRecording(ctx, id)
		if err != nil {
			// Skip files other tools dropped in the directory.
			continue
		}
		result = append(result, ports.Summarize(rec))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	// Simple pagination
	start := opts.Offset
	if start >= len(result) {
		return []*storage.RecordingSummary{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("recording %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return nil
}
