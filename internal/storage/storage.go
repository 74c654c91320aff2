package storage

import (
	"github.com/tjfontaine/callscope/internal/core/ports"
)

// Re-export storage interfaces and types from core/ports so backends and
// their callers share one vocabulary.
type (
	RecordingStore   = ports.RecordingStore
	RecordingSummary = ports.RecordingSummary
	ListOptions      = ports.ListOptions
)

// ErrNotFound mirrors ports.ErrNotFound for callers that only import this
// package.
var ErrNotFound = ports.ErrNotFound
