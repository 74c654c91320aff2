package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/core/ports"
	"github.com/tjfontaine/callscope/internal/storage"
)

// Store is an in-memory implementation of RecordingStore
type Store struct {
	mu         sync.RWMutex
	recordings map[string]*domain.Recording
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		recordings: make(map[string]*domain.Recording),
	}
}

var _ storage.RecordingStore = (*Store)(nil)

func (s *Store) SaveRecording(ctx context.Context, rec *domain.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.recordings[rec.ID]; exists {
		return fmt.Errorf("recording %s already exists", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.recordings[rec.ID] = rec
	return nil
}

func (s *Store) GetRecording(ctx context.Context, id string) (*domain.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.recordings[id]
	if !exists {
		return nil, fmt.Errorf("recording %s: %w", id, storage.ErrNotFound)
	}

	return rec, nil
}

func (s *Store) ListRecordings(ctx context.Context, opts storage.ListOptions) ([]*storage.RecordingSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.RecordingSummary
	for _, rec := range s.recordings {
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
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.recordings[id]; !exists {
		return fmt.Errorf("recording %s: %w", id, storage.ErrNotFound)
	}

	delete(s.recordings, id)
	return nil
}

func (s *Store) Close() error {
	return nil
}
