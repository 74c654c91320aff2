// Package ports defines the core interfaces for the tracer.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/callscope/internal/core/domain"
)

// ErrNotFound reports that no recording exists under the requested id.
var ErrNotFound = errors.New("recording not found")

// ListOptions controls pagination for list operations.
type ListOptions struct {
	Limit  int
	Offset int
}

// RecordingSummary is the list view of a stored recording. Event bodies stay
// out of listings; fetch the full recording with GetRecording.
type RecordingSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	App          string    `json:"app,omitempty"`
	RecorderType string    `json:"recorder_type,omitempty"`
	Events       int       `json:"events"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summarize builds the list view of a recording.
func Summarize(rec *domain.Recording) *RecordingSummary {
	return &RecordingSummary{
		ID:           rec.ID,
		Name:         rec.Metadata.Name,
		App:          rec.Metadata.App,
		RecorderType: rec.Metadata.RecorderType,
		Events:       len(rec.Events),
		CreatedAt:    rec.CreatedAt,
	}
}

// RecordingStore defines the interface for recording storage
type RecordingStore interface {
	// SaveRecording persists a completed recording
	SaveRecording(ctx context.Context, rec *domain.Recording) error

	// GetRecording retrieves a recording by ID
	GetRecording(ctx context.Context, id string) (*domain.Recording, error)

	// ListRecordings lists stored recordings with pagination, newest first
	ListRecordings(ctx context.Context, opts ListOptions) ([]*RecordingSummary, error)

	// DeleteRecording deletes a recording by ID
	DeleteRecording(ctx context.Context, id string) error

	// Close closes the storage connection
	Close() error
}
