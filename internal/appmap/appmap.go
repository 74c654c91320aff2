// Package appmap renders recordings in AppMap JSON format and reads them
// back. The on-disk and over-the-wire representation follows the AppMap
// specification; a handful of extension fields carry tracer metadata the
// format has no slot for.
package appmap

import (
	"encoding/json"
	"fmt"
	"regexp"
	"runtime"
	"time"

	"github.com/tjfontaine/callscope/internal/core/domain"
)

// Version is the AppMap format version emitted by Encode.
const Version = "1.12"

// Extension is the conventional file suffix for serialized recordings.
const Extension = ".appmap.json"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// FileName maps a recording name to a safe file name, replacing anything
// outside [a-zA-Z0-9-_] with underscores.
func FileName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_") + Extension
}

type document struct {
	Version  string               `json:"version"`
	Metadata metadataJSON         `json:"metadata"`
	ClassMap []*domain.CodeObject `json:"classMap"`
	Events   []eventJSON          `json:"events"`
}

type metadataJSON struct {
	Name       string       `json:"name,omitempty"`
	App        string       `json:"app,omitempty"`
	Labels     []string     `json:"labels,omitempty"`
	Language   languageJSON `json:"language"`
	Client     clientJSON   `json:"client"`
	Recorder   recorderJSON `json:"recorder"`
	Hostname   string       `json:"hostname,omitempty"`
	StartedAt  time.Time    `json:"started_at,omitzero"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`
}

type languageJSON struct {
	Name    string `json:"name"`
	Engine  string `json:"engine,omitempty"`
	Version string `json:"version,omitempty"`
}

type clientJSON struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type recorderJSON struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

type paramJSON struct {
	Name  string `json:"name,omitempty"`
	Class string `json:"class,omitempty"`
	Value string `json:"value"`
}

type exceptionJSON struct {
	Class   string `json:"class"`
	Message string `json:"message"`
}

// eventJSON covers both event shapes; the Event field discriminates. Call
// fields and return fields are mutually exclusive in practice.
type eventJSON struct {
	ID       uint64 `json:"id"`
	Event    string `json:"event"`
	ThreadID int64  `json:"thread_id"`

	DefinedClass string      `json:"defined_class,omitempty"`
	MethodID     string      `json:"method_id,omitempty"`
	Path         string      `json:"path,omitempty"`
	Lineno       int         `json:"lineno,omitempty"`
	Static       bool        `json:"static,omitempty"`
	Parameters   []paramJSON `json:"parameters,omitempty"`

	ParentID    uint64          `json:"parent_id,omitempty"`
	Elapsed     float64         `json:"elapsed,omitempty"`
	ReturnValue *paramJSON      `json:"return_value,omitempty"`
	Exceptions  []exceptionJSON `json:"exceptions,omitempty"`
}

// Encode serializes a recording as an AppMap document.
func Encode(rec *domain.Recording) ([]byte, error) {
	doc := document{
		Version: Version,
		Metadata: metadataJSON{
			Name:   rec.Metadata.Name,
			App:    rec.Metadata.App,
			Labels: rec.Metadata.Labels,
			Language: languageJSON{
				Name:    "go",
				Engine:  runtime.Compiler,
				Version: runtime.Version(),
			},
			Client: clientJSON{
				Name: "callscope",
				URL:  "https://github.com/tjfontaine/callscope",
			},
			Recorder: recorderJSON{
				Name: rec.Metadata.RecorderName,
				Type: rec.Metadata.RecorderType,
			},
			Hostname:   rec.Metadata.Hostname,
			StartedAt:  rec.Metadata.StartedAt,
			FinishedAt: rec.Metadata.FinishedAt,
		},
		ClassMap: rec.ClassMap,
		Events:   make([]eventJSON, 0, len(rec.Events)),
	}
	if doc.ClassMap == nil {
		doc.ClassMap = []*domain.CodeObject{}
	}

	for _, e := range rec.Events {
		doc.Events = append(doc.Events, encodeEvent(e))
	}
	return json.Marshal(doc)
}

func encodeEvent(e *domain.Event) eventJSON {
	out := eventJSON{
		ID:       e.ID,
		ThreadID: e.ThreadID,
	}
	switch e.Kind {
	case domain.KindCall:
		out.Event = "call"
		out.DefinedClass = e.DefinedClass
		out.MethodID = e.MethodID
		out.Path = e.Path
		out.Lineno = e.Lineno
		out.Static = e.Static
		for _, p := range e.Params {
			out.Parameters = append(out.Parameters, paramJSON{Name: p.Name, Class: p.Class, Value: p.Value})
		}
	case domain.KindReturn:
		out.Event = "return"
		out.ParentID = e.ParentID
		out.Elapsed = e.Elapsed.Seconds()
		if e.Return != nil {
			out.ReturnValue = &paramJSON{Class: e.Return.Class, Value: e.Return.Value}
		}
		if e.Error != "" {
			out.Exceptions = []exceptionJSON{{Class: "error", Message: e.Error}}
		}
	}
	return out
}

// Decode parses an AppMap document back into a recording. Only fields the
// tracer itself emits are restored; unknown extensions are ignored.
func Decode(data []byte) (*domain.Recording, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing appmap document: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("parsing appmap document: missing version")
	}

	rec := &domain.Recording{
		Metadata: domain.Metadata{
			Name:         doc.Metadata.Name,
			App:          doc.Metadata.App,
			Labels:       doc.Metadata.Labels,
			RecorderName: doc.Metadata.Recorder.Name,
			RecorderType: doc.Metadata.Recorder.Type,
			Hostname:     doc.Metadata.Hostname,
			StartedAt:    doc.Metadata.StartedAt,
			FinishedAt:   doc.Metadata.FinishedAt,
		},
		ClassMap: doc.ClassMap,
		Events:   make([]*domain.Event, 0, len(doc.Events)),
	}

	for _, ej := range doc.Events {
		e := &domain.Event{
			ID:       ej.ID,
			ThreadID: ej.ThreadID,
		}
		switch ej.Event {
		case "call":
			e.Kind = domain.KindCall
			e.DefinedClass = ej.DefinedClass
			e.MethodID = ej.MethodID
			e.Path = ej.Path
			e.Lineno = ej.Lineno
			e.Static = ej.Static
			for _, p := range ej.Parameters {
				e.Params = append(e.Params, domain.Param{Name: p.Name, Class: p.Class, Value: p.Value})
			}
		case "return":
			e.Kind = domain.KindReturn
			e.ParentID = ej.ParentID
			e.Elapsed = time.Duration(ej.Elapsed * float64(time.Second))
			if ej.ReturnValue != nil {
				e.Return = &domain.Param{Class: ej.ReturnValue.Class, Value: ej.ReturnValue.Value}
			}
			if len(ej.Exceptions) > 0 {
				e.Error = ej.Exceptions[0].Message
			}
		default:
			return nil, fmt.Errorf("parsing appmap document: unknown event kind %q", ej.Event)
		}
		rec.Events = append(rec.Events, e)
	}
	return rec, nil
}
