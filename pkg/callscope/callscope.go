// Package callscope provides the public API for embedding the tracer.
// This is the stable API for external consumers.
package callscope

import (
	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/instrument"
	"github.com/tjfontaine/callscope/internal/record"
	"github.com/tjfontaine/callscope/internal/runtime"
	"github.com/tjfontaine/callscope/internal/storage"
)

// Tracer is the main entry point for running the tracer.
// See internal/runtime.Tracer for full documentation.
type Tracer = runtime.Tracer

// Option is a functional option for configuring a Tracer.
type Option = runtime.Option

// Recorder is the session engine: paired call/return capture, per-goroutine
// correlation, and the exclusive recording session.
type Recorder = record.Recorder

// Hook API: a traced function registers once for a Template, then opens a
// Frame per invocation.
type (
	Registry = instrument.Registry
	FuncInfo = instrument.FuncInfo
	Template = instrument.Template
	Frame    = instrument.Frame
)

// Recording data model.
type (
	Event      = domain.Event
	Kind       = domain.Kind
	Param      = domain.Param
	Metadata   = domain.Metadata
	Recording  = domain.Recording
	CodeObject = domain.CodeObject
)

// RecordingStore is the persistence contract accepted by WithStore.
type RecordingStore = storage.RecordingStore

// Event kinds.
const (
	KindCall   = domain.KindCall
	KindReturn = domain.KindReturn
)

// Recorder types identify how a recording was initiated.
const (
	RecorderTypeRemote    = domain.RecorderTypeRemote
	RecorderTypeBlock     = domain.RecorderTypeBlock
	RecorderTypeScheduled = domain.RecorderTypeScheduled
	RecorderTypeTests     = domain.RecorderTypeTests
)

// Sentinel errors surfaced by session control.
var (
	ErrSessionActive = domain.ErrSessionActive
	ErrNoSession     = domain.ErrNoSession
)

// New creates a new Tracer with the given options.
// Example:
//
//	tr, err := callscope.New(
//	    callscope.WithConfigFile("config.yaml"),
//	    callscope.WithSQLite("./data/callscope.db"),
//	)
var New = runtime.New

// NewRecorder builds a bare session engine for hosts that want event capture
// without the surrounding runtime.
var NewRecorder = record.NewRecorder

// CaptureParam snapshots a named value for event parameters and return
// values. Rendering is deferred until the event freezes.
var CaptureParam = domain.CaptureParam

// Configuration options
var (
	// Config sources
	WithConfigFile = runtime.WithConfigFile

	// Storage
	WithMemoryStore = runtime.WithMemoryStore
	WithSQLite      = runtime.WithSQLite
	WithRedis       = runtime.WithRedis
	WithFileStore   = runtime.WithFileStore
	WithStore       = runtime.WithStore

	// Outputs
	WithOutputDir = runtime.WithOutputDir
	WithUploader  = runtime.WithUploader

	// Control plane
	WithListenAddr = runtime.WithListenAddr

	// Scheduled captures
	WithSchedule = runtime.WithSchedule
	WithClock    = runtime.WithClock

	// Advanced options
	WithApp    = runtime.WithApp
	WithLogger = runtime.WithLogger
)
