package appmap

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/callscope/internal/core/domain"
)

func TestWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "appmaps"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	path, err := w.Write(sampleRecording())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if want := filepath.Join(dir, "appmaps", "checkout_flow.appmap.json"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	rec, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(rec.Events) != 2 {
		t.Errorf("Events count = %d, want 2", len(rec.Events))
	}

	// No temp residue left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "appmaps"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory entries = %d, want 1", len(entries))
	}
}

func TestWriter_UnnamedRecordingUsesID(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))

	path, err := w.Write(&domain.Recording{ID: "rec_42"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if want := filepath.Join(dir, "rec_42.appmap.json"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}
