package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/storage"
)

func sampleRecording(id string) *domain.Recording {
	return &domain.Recording{
		ID: id,
		Metadata: domain.Metadata{
			Name:         "checkout",
			RecorderType: domain.RecorderTypeRemote,
		},
		Events: []*domain.Event{
			{ID: 1, Kind: domain.KindCall, ThreadID: 7, MethodID: "Total"},
			{ID: 2, Kind: domain.KindReturn, ThreadID: 7, ParentID: 1},
		},
	}
}

func TestFileStore_SaveAndGetRecording(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := store.SaveRecording(ctx, sampleRecording("rec_1")); err != nil {
		t.Fatalf("SaveRecording() error = %v", err)
	}

	loaded, err := store.GetRecording(ctx, "rec_1")
	if err != nil {
		t.Fatalf("GetRecording() error = %v", err)
	}

	if loaded.ID != "rec_1" {
		t.Errorf("ID = %v, want rec_1", loaded.ID)
	}
	if len(loaded.Events) != 2 {
		t.Fatalf("Events count = %d, want 2", len(loaded.Events))
	}
	if loaded.Events[1].ParentID != 1 {
		t.Errorf("ParentID = %d, want 1", loaded.Events[1].ParentID)
	}
	if loaded.CreatedAt.IsZero() {
		t.Error("CreatedAt not restored from file")
	}

	// Duplicate ids are rejected
	if err := store.SaveRecording(ctx, sampleRecording("rec_1")); err == nil {
		t.Error("SaveRecording() expected error for duplicate id")
	}
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		if err := store.SaveRecording(context.Background(), sampleRecording(id)); err == nil {
			t.Errorf("SaveRecording(%q) expected error", id)
		}
		if _, err := store.GetRecording(context.Background(), id); err == nil {
			t.Errorf("GetRecording(%q) expected error", id)
		}
	}
}

func TestFileStore_ListRecordings(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	for _, id := range []string{"rec_a", "rec_b", "rec_c"} {
		if err := store.SaveRecording(ctx, sampleRecording(id)); err != nil {
			t.Fatalf("SaveRecording() error = %v", err)
		}
	}

	// A stray file in the directory is ignored
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	recs, err := store.ListRecordings(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListRecordings() error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("ListRecordings() count = %d, want 3", len(recs))
	}
	if recs[0].Events != 2 {
		t.Errorf("summary event count = %d, want 2", recs[0].Events)
	}

	page, err := store.ListRecordings(ctx, storage.ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListRecordings() error = %v", err)
	}
	if len(page) != 1 {
		t.Errorf("paged count = %d, want 1", len(page))
	}
}

func TestFileStore_DeleteRecording(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := store.SaveRecording(ctx, sampleRecording("rec_del")); err != nil {
		t.Fatalf("SaveRecording() error = %v", err)
	}

	if err := store.DeleteRecording(ctx, "rec_del"); err != nil {
		t.Fatalf("DeleteRecording() error = %v", err)
	}

	if _, err := store.GetRecording(ctx, "rec_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetRecording() error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteRecording(ctx, "rec_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteRecording() error = %v, want ErrNotFound", err)
	}
}
