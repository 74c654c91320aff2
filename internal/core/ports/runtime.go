package ports

import (
	"context"

	"github.com/tjfontaine/callscope/internal/core/domain"
)

// Sink receives completed recordings when a session stops or checkpoints.
// Implementations: recording stores, AppMap file output, remote upload.
type Sink interface {
	// Flush delivers one finished recording. Implementations must tolerate
	// being called from shutdown paths with short deadlines.
	Flush(ctx context.Context, rec *domain.Recording) error

	// Name identifies the sink in logs and metrics.
	Name() string

	// Close releases sink resources.
	Close() error
}
