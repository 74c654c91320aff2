package domain

import "time"

// Recorder types identify how a recording was initiated.
const (
	RecorderTypeRemote    = "remote"
	RecorderTypeBlock     = "block"
	RecorderTypeScheduled = "scheduled"
	RecorderTypeTests     = "tests"
)

// Metadata describes a recording run. It is supplied at session start and
// carried through to the finished recording; the core attaches it to the
// session without interpreting it.
type Metadata struct {
	// Name is the scenario name, used for output file naming.
	Name string `json:"name,omitempty"`

	// App identifies the application being traced.
	App string `json:"app,omitempty"`

	RecorderName string `json:"recorder_name,omitempty"`
	RecorderType string `json:"recorder_type,omitempty"`

	Hostname string `json:"hostname,omitempty"`

	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Labels are free-form annotations for the run.
	Labels []string `json:"labels,omitempty"`
}

// Recording is the finalized, ordered sequence of correlated events plus the
// metadata and code-object snapshot produced by ending (or checkpointing) a
// session. It is independent of the session once produced.
type Recording struct {
	ID        string        `json:"id"`
	Metadata  Metadata      `json:"metadata"`
	Events    []*Event      `json:"events"`
	ClassMap  []*CodeObject `json:"class_map,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
