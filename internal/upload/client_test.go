package upload

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/testutil"
)

func testRecording(id string) *domain.Recording {
	return &domain.Recording{
		ID: id,
		Metadata: domain.Metadata{
			Name:         "checkout",
			RecorderType: domain.RecorderTypeRemote,
		},
		Events: []*domain.Event{
			{ID: 1, Kind: domain.KindCall, ThreadID: 7},
			{ID: 2, Kind: domain.KindReturn, ThreadID: 7, ParentID: 1},
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_Upload(t *testing.T) {
	client := NewClient("test-token",
		WithBaseURL("https://collector.test"),
		WithHTTPClient(testutil.VCRClient(t, "upload_single")),
		WithLogger(testLogger()),
	)

	result, err := client.Upload(context.Background(), testRecording("rec_1"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if result.ID != "am_7f3e2c" {
		t.Errorf("remote id = %q, want am_7f3e2c", result.ID)
	}
}

func TestClient_UploadUnauthorized(t *testing.T) {
	client := NewClient("",
		WithBaseURL("https://collector.test"),
		WithHTTPClient(testutil.VCRClient(t, "upload_unauthorized")),
		WithLogger(testLogger()),
	)

	_, err := client.Upload(context.Background(), testRecording("rec_1"))
	if err == nil {
		t.Fatal("Upload() expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("error = %v, want collector error carrying status 401", err)
	}
}

func TestClient_UploadAll(t *testing.T) {
	client := NewClient("test-token",
		WithBaseURL("https://collector.test"),
		WithHTTPClient(testutil.VCRClient(t, "upload_batch")),
		WithLogger(testLogger()),
	)

	recs := []*domain.Recording{
		testRecording("rec_1"),
		testRecording("rec_2"),
		testRecording("rec_3"),
	}
	if err := client.UploadAll(context.Background(), recs, 2); err != nil {
		t.Fatalf("UploadAll() error = %v", err)
	}
}

func TestClient_BaseURLTrimmed(t *testing.T) {
	client := NewClient("tok", WithBaseURL("https://collector.test/"))
	if client.baseURL != "https://collector.test" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
	}
}
