package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/callscope/internal/appmap"
	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/core/ports"
	"github.com/tjfontaine/callscope/internal/storage/memory"
)

type failSink struct {
	err error
}

func (f *failSink) Flush(ctx context.Context, rec *domain.Recording) error { return f.err }
func (f *failSink) Name() string                                           { return "failing" }
func (f *failSink) Close() error                                           { return nil }

func testRecording(id string) *domain.Recording {
	return &domain.Recording{
		ID:       id,
		Metadata: domain.Metadata{Name: "multi sink run"},
		Events: []*domain.Event{
			{ID: 1, Kind: domain.KindCall, ThreadID: 1},
			{ID: 2, Kind: domain.KindReturn, ThreadID: 1, ParentID: 1},
		},
	}
}

func TestMultiSink_FlushContinuesPastFailure(t *testing.T) {
	first := memory.New()
	second := memory.New()
	wantErr := errors.New("collector unreachable")

	sink := &multiSink{sinks: []ports.Sink{
		&storeSink{store: first, backend: "memory"},
		&failSink{err: wantErr},
		&storeSink{store: second, backend: "memory"},
	}}

	err := sink.Flush(context.Background(), testRecording("rec_multi"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("Flush() error = %v, want it to wrap %v", err, wantErr)
	}

	for i, store := range []*memory.Store{first, second} {
		if _, err := store.GetRecording(context.Background(), "rec_multi"); err != nil {
			t.Errorf("store %d missing recording: %v", i, err)
		}
	}
}

func TestWriterSink_Flush(t *testing.T) {
	dir := t.TempDir()
	sink := &writerSink{writer: appmap.NewWriter(dir, testLogger())}

	if err := sink.Flush(context.Background(), testRecording("rec_file")); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	path := filepath.Join(dir, "multi_sink_run"+appmap.Extension)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected appmap file at %s: %v", path, err)
	}
}
