package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons reported by the event router.
const (
	DropNoSession       = "no_session"
	DropReentrant       = "reentrant"
	DropUnmatchedReturn = "unmatched_return"
	DropSessionVanished = "session_vanished"
	DropThrottled       = "throttled"
)

var (
	eventsRecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "callscope_events_recorded_total",
			Help: "Total number of events added to a recording session",
		},
	)

	eventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callscope_events_dropped_total",
			Help: "Total number of events dropped before reaching a session",
		},
		[]string{"reason"},
	)

	sessionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "callscope_sessions_started_total",
			Help: "Total number of recording sessions started",
		},
	)

	sessionsStoppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "callscope_sessions_stopped_total",
			Help: "Total number of recording sessions stopped",
		},
	)

	sessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "callscope_session_active",
			Help: "Whether a recording session is currently active (0 or 1)",
		},
	)

	codeObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "callscope_code_objects",
			Help: "Number of functions registered in the code-object catalogue",
		},
	)

	recordingsSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callscope_recordings_saved_total",
			Help: "Total number of recordings persisted, by storage backend",
		},
		[]string{"backend"},
	)

	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callscope_uploads_total",
			Help: "Total number of recording uploads, by outcome",
		},
		[]string{"status"},
	)

	initOnce sync.Once
)

// InitMetrics registers the tracer's Prometheus collectors.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			eventsRecordedTotal,
			eventsDroppedTotal,
			sessionsStartedTotal,
			sessionsStoppedTotal,
			sessionActive,
			codeObjects,
			recordingsSavedTotal,
			uploadsTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordEvent counts one event accepted into the active session.
func RecordEvent() {
	eventsRecordedTotal.Inc()
}

// DropEvent counts one event dropped for the given reason.
func DropEvent(reason string) {
	eventsDroppedTotal.WithLabelValues(reason).Inc()
}

// SessionStarted counts a session start and flips the active gauge.
func SessionStarted() {
	sessionsStartedTotal.Inc()
	sessionActive.Set(1)
}

// SessionStopped counts a session stop and clears the active gauge.
func SessionStopped() {
	sessionsStoppedTotal.Inc()
	sessionActive.Set(0)
}

// SetCodeObjects sets the code-object catalogue size gauge.
func SetCodeObjects(count int) {
	codeObjects.Set(float64(count))
}

// RecordingSaved counts a recording persisted to the given backend.
func RecordingSaved(backend string) {
	recordingsSavedTotal.WithLabelValues(backend).Inc()
}

// RecordUpload counts one upload attempt by outcome ("ok" or "error").
func RecordUpload(status string) {
	uploadsTotal.WithLabelValues(status).Inc()
}
